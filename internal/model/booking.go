package model

import "time"

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPending         Status = "pending"
	StatusConfirmed       Status = "confirmed"
	StatusModified        Status = "modified"
	StatusCounterProposed Status = "counter_proposed"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
	StatusNoShow          Status = "no_show"
)

// AllStatuses lists every booking status in declaration order.
var AllStatuses = []Status{
	StatusDraft, StatusPending, StatusConfirmed, StatusModified, StatusCounterProposed,
	StatusCompleted, StatusCancelled, StatusRejected, StatusExpired, StatusNoShow,
}

// Terminal reports whether no further status change is permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected, StatusExpired, StatusNoShow:
		return true
	}
	return false
}

// Negotiating reports whether the status requires an attached pending proposal.
func (s Status) Negotiating() bool {
	return s == StatusCounterProposed || s == StatusModified
}

// AwaitingResolution reports whether the booking still waits for the
// provider (or the venue) to resolve it. Only these states carry a
// payment deadline.
func (s Status) AwaitingResolution() bool {
	return s == StatusPending || s == StatusCounterProposed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Kind classifies what is being booked.
type Kind string

const (
	KindClass   Kind = "class"
	KindProgram Kind = "program"
	KindPrivate Kind = "private"
)

// Valid reports whether k is a bookable kind.
func (k Kind) Valid() bool {
	return k == KindClass || k == KindProgram || k == KindPrivate
}

// PaymentMethod selects how the requester pays.
type PaymentMethod string

const (
	PaymentCard       PaymentMethod = "card"
	PaymentPayAtVenue PaymentMethod = "pay_at_venue"
)

// Valid reports whether m is a supported method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentPayAtVenue
}

// PaymentStatus tracks money movement independently from the booking status.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentProcessing        PaymentStatus = "processing"
	PaymentCompleted         PaymentStatus = "completed"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentDisputed          PaymentStatus = "disputed"
	PaymentOnHold            PaymentStatus = "on_hold"
)

// CancellationPolicy determines how much notice a cancellation needs.
type CancellationPolicy string

const (
	CancelFlexible CancellationPolicy = "flexible"
	CancelModerate CancellationPolicy = "moderate"
	CancelStrict   CancellationPolicy = "strict"
)

// Party identifies which side of a booking an actor is on.
type Party string

const (
	PartyRequester Party = "requester"
	PartyProvider  Party = "provider"
	PartySystem    Party = "system"
)

// Counter returns the opposite side of a two-party negotiation.
func (p Party) Counter() Party {
	switch p {
	case PartyRequester:
		return PartyProvider
	case PartyProvider:
		return PartyRequester
	}
	return PartySystem
}

// Terms holds the negotiable scheduling and commercial terms of a booking.
// Date is a calendar day (YYYY-MM-DD) and Time a wall clock start (HH:MM),
// both interpreted in UTC.
type Terms struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	VenueID         string `json:"venue_id"`
	PriceCents      int64  `json:"price_cents"`
	Currency        string `json:"currency"`
}

// SessionStart parses Date and Time into an instant.
func (t Terms) SessionStart() (time.Time, error) {
	return time.Parse("2006-01-02 15:04", t.Date+" "+t.Time)
}

// Booking is the unit of negotiation between a requester (the client) and
// a provider (coach or gym).
//
// Fields of note:
//  ActiveProposalID   – the single pending proposal, empty when none.
//  PreProposalStatus  – status the booking returns to when the active
//                       proposal is withdrawn, rejected after confirmation
//                       or lapses.
//  PaymentDueDate     – set only while a pay-at-venue booking waits for
//                       resolution (pending or counter_proposed).
//  ReminderCheckpoint – last instant the reminder schedule was evaluated.
//  WindowOpenedAt     – when the first pay-at-venue wait opened; later
//                       waits keep the deadline it implies.
//  PaymentAttempt     – idempotency key of a card charge whose outcome
//                       is unknown, reused by the next attempt.
//  VenueCodeHash      – bcrypt hash of the code shown at the venue.
//  VenueCode          – plaintext code, returned once when the wait opens.
//  Version            – optimistic concurrency counter kept by the store.
type Booking struct {
	ID          string `json:"id"`
	RequesterID string `json:"requester_id"`
	ProviderID  string `json:"provider_id"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title,omitempty"`

	Terms

	PaymentMethod      PaymentMethod      `json:"payment_method"`
	PaymentStatus      PaymentStatus      `json:"payment_status"`
	PaymentRef         string             `json:"payment_ref,omitempty"`
	CancellationPolicy CancellationPolicy `json:"cancellation_policy"`

	Status            Status `json:"status"`
	PreProposalStatus Status `json:"pre_proposal_status,omitempty"`
	ActiveProposalID  string `json:"active_proposal_id,omitempty"`
	NegotiationRounds int    `json:"negotiation_rounds"`
	Reason            string `json:"reason,omitempty"`
	CancelledBy       Party  `json:"cancelled_by,omitempty"`

	PaymentDueDate     *time.Time `json:"payment_due_date,omitempty"`
	ReminderCheckpoint *time.Time `json:"-"`
	WindowOpenedAt     *time.Time `json:"-"`
	PaymentAttempt     string     `json:"-"`
	VenueCodeHash      string     `json:"-"`
	VenueCode          string     `json:"venue_code,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Version int64 `json:"version"`
}

// PartyOf returns which side actorID is on, or false when the actor is
// not a party to the booking.
func (b *Booking) PartyOf(actorID string) (Party, bool) {
	switch actorID {
	case "":
		return "", false
	case b.RequesterID:
		return PartyRequester, true
	case b.ProviderID:
		return PartyProvider, true
	}
	return "", false
}

// ParticipantID returns the user id acting for party p.
func (b *Booking) ParticipantID(p Party) string {
	switch p {
	case PartyRequester:
		return b.RequesterID
	case PartyProvider:
		return b.ProviderID
	}
	return ""
}

// Clone returns a deep copy so callers can mutate without aliasing the
// store's record.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.PaymentDueDate = cloneTime(b.PaymentDueDate)
	c.ReminderCheckpoint = cloneTime(b.ReminderCheckpoint)
	c.WindowOpenedAt = cloneTime(b.WindowOpenedAt)
	c.ConfirmedAt = cloneTime(b.ConfirmedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time { return &t }

// StatusChange is one row of a booking's audit trail.
type StatusChange struct {
	BookingID string    `json:"booking_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Trigger   string    `json:"trigger"`
	ActorID   string    `json:"actor_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}
