package repository

import (
	"context"
	"time"

	"github.com/iliyamo/fitbook/internal/model"
)

// Store is the keyed persistence abstraction behind the booking engine.
// No business rules live here; implementations only guarantee that a
// ChangeSet is committed atomically and that stale writes are refused.
type Store interface {
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.Booking, error)
	ListByParty(ctx context.Context, partyID string) ([]model.Booking, error)
	// ListAwaitingDeadline returns bookings with a payment due date,
	// earliest deadline first.
	ListAwaitingDeadline(ctx context.Context) ([]model.Booking, error)

	GetProposal(ctx context.Context, id string) (*model.Proposal, error)
	ListProposals(ctx context.Context, bookingID string) ([]model.Proposal, error)
	// ListLapsedProposals returns pending proposals whose ExpiresAt is at
	// or before now, oldest first.
	ListLapsedProposals(ctx context.Context, now time.Time) ([]model.Proposal, error)

	ListReminders(ctx context.Context, bookingID string) ([]model.Reminder, error)
	ListHistory(ctx context.Context, bookingID string) ([]model.StatusChange, error)

	// Save commits the change set. It is the commit point of every
	// booking operation: either everything in the set is persisted or
	// nothing is.
	Save(ctx context.Context, cs *ChangeSet) error
}

// ChangeSet groups the records touched by one booking operation.
//
// Booking.Version must carry the version that was read; the store
// compares it with the stored version, rejects mismatches with
// ErrConflict and bumps Booking.Version on success. A zero version
// creates the booking.
type ChangeSet struct {
	Booking   *model.Booking
	Proposals []model.Proposal
	Reminders []model.Reminder
	History   []model.StatusChange
}

// PutProposal adds or replaces p in the change set.
func (cs *ChangeSet) PutProposal(p model.Proposal) {
	for i := range cs.Proposals {
		if cs.Proposals[i].ID == p.ID {
			cs.Proposals[i] = p
			return
		}
	}
	cs.Proposals = append(cs.Proposals, p)
}

// PutReminder adds or replaces r in the change set.
func (cs *ChangeSet) PutReminder(r model.Reminder) {
	for i := range cs.Reminders {
		if cs.Reminders[i].ID == r.ID {
			cs.Reminders[i] = r
			return
		}
	}
	cs.Reminders = append(cs.Reminders, r)
}

// Empty reports whether nothing would be written.
func (cs *ChangeSet) Empty() bool {
	return cs.Booking == nil && len(cs.Proposals) == 0 && len(cs.Reminders) == 0 && len(cs.History) == 0
}
