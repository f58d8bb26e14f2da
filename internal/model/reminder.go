package model

import "time"

// ReminderStatus tracks whether a reminder instant has been consumed.
type ReminderStatus string

const (
	ReminderScheduled ReminderStatus = "scheduled"
	ReminderFired     ReminderStatus = "fired"
	ReminderSkipped   ReminderStatus = "skipped"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder is one precomputed instant of a booking's payment reminder
// schedule. Instants are computed when the pay-at-venue wait opens and
// are consumed at most once.
//
// Fields:
//  Seq     – position in the schedule, ascending with FireAt.
//  Final   – the mandatory last reminder before the deadline.
//  FiredAt – when the reminder was delivered (or skipped/cancelled).
type Reminder struct {
	ID        string         `json:"id"`
	BookingID string         `json:"booking_id"`
	Seq       int            `json:"seq"`
	FireAt    time.Time      `json:"fire_at"`
	Final     bool           `json:"final"`
	Status    ReminderStatus `json:"status"`
	FiredAt   *time.Time     `json:"fired_at,omitempty"`
}
