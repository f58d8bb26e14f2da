package booking

import (
	"context"

	"github.com/iliyamo/fitbook/internal/model"
)

// GetBooking returns a booking visible to actorID.
func (e *Engine) GetBooking(ctx context.Context, bookingID, actorID string) (*model.Booking, error) {
	const op = "get booking"
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, e.storeError(op, err)
	}
	if _, ok := b.PartyOf(actorID); !ok {
		return nil, newError(KindUnauthorizedActor, op, "you are not a party to this booking")
	}
	return b, nil
}

// ListBookings returns the bookings actorID takes part in, optionally
// narrowed to one status.
func (e *Engine) ListBookings(ctx context.Context, actorID string, status model.Status) ([]model.Booking, error) {
	const op = "list bookings"
	if status != "" && !status.Valid() {
		return nil, newError(KindInvalidInput, op, "unknown status %q", status)
	}
	all, err := e.store.ListByParty(ctx, actorID)
	if err != nil {
		return nil, e.storeError(op, err)
	}
	if status == "" {
		return all, nil
	}
	out := make([]model.Booking, 0, len(all))
	for _, b := range all {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListProposals returns the negotiation history of a booking.
func (e *Engine) ListProposals(ctx context.Context, bookingID, actorID string) ([]model.Proposal, error) {
	if _, err := e.GetBooking(ctx, bookingID, actorID); err != nil {
		return nil, err
	}
	ps, err := e.store.ListProposals(ctx, bookingID)
	if err != nil {
		return nil, e.storeError("list proposals", err)
	}
	return ps, nil
}

// History returns the status audit trail of a booking.
func (e *Engine) History(ctx context.Context, bookingID, actorID string) ([]model.StatusChange, error) {
	if _, err := e.GetBooking(ctx, bookingID, actorID); err != nil {
		return nil, err
	}
	h, err := e.store.ListHistory(ctx, bookingID)
	if err != nil {
		return nil, e.storeError("history", err)
	}
	return h, nil
}

// Reminders returns the payment reminder schedule of a booking.
func (e *Engine) Reminders(ctx context.Context, bookingID, actorID string) ([]model.Reminder, error) {
	if _, err := e.GetBooking(ctx, bookingID, actorID); err != nil {
		return nil, err
	}
	rs, err := e.store.ListReminders(ctx, bookingID)
	if err != nil {
		return nil, e.storeError("reminders", err)
	}
	return rs, nil
}
