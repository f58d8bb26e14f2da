package model

import "time"

// EventType names a domain event. The value doubles as the broker routing key.
type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingSubmitted EventType = "booking.submitted"
	EventBookingProposed  EventType = "booking.proposed"
	EventBookingCountered EventType = "booking.countered"
	EventBookingAccepted  EventType = "booking.accepted"
	EventBookingRejected  EventType = "booking.rejected"
	EventBookingReverted  EventType = "booking.reverted"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingExpired   EventType = "booking.expired"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingNoShow    EventType = "booking.no_show"
	EventProposalExpired  EventType = "proposal.expired"
	EventPaymentRequired  EventType = "payment.required"
	EventPaymentReminder  EventType = "payment.reminder"
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
)

// Event is emitted after a booking change has been committed. It is the
// envelope handed to the notification dispatcher and published to the
// broker; rendering it for end users is the dispatcher's job.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	BookingID   string         `json:"booking_id"`
	RecipientID string         `json:"recipient_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}
