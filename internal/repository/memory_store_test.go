package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitbook/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newBooking(id string, status model.Status) *model.Booking {
	return &model.Booking{
		ID:          id,
		RequesterID: "client-1",
		ProviderID:  "coach-1",
		Kind:        model.KindClass,
		Terms:       model.Terms{Date: "2026-03-10", Time: "10:00", DurationMinutes: 60, VenueID: "gym-1", PriceCents: 2500, Currency: "USD"},
		Status:      status,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
}

func TestMemoryStoreCreateAndVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	b := newBooking("b1", model.StatusPending)
	require.NoError(t, s.Save(ctx, &ChangeSet{Booking: b}))
	assert.Equal(t, int64(1), b.Version)

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	stale := got.Clone()
	got.Status = model.StatusConfirmed
	require.NoError(t, s.Save(ctx, &ChangeSet{Booking: got}))
	assert.Equal(t, int64(2), got.Version)

	stale.Status = model.StatusRejected
	err = s.Save(ctx, &ChangeSet{Booking: stale})
	assert.ErrorIs(t, err, ErrConflict)

	cur, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, cur.Status)
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetProposal(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	b := newBooking("b1", model.StatusPending)
	b.Version = 3
	assert.ErrorIs(t, s.Save(ctx, &ChangeSet{Booking: b}), ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	due := t0.Add(24 * time.Hour)
	b := newBooking("b1", model.StatusPending)
	b.PaymentDueDate = &due
	require.NoError(t, s.Save(ctx, &ChangeSet{Booking: b}))

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	*got.PaymentDueDate = t0
	got.Status = model.StatusExpired

	again, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, due, *again.PaymentDueDate)
	assert.Equal(t, model.StatusPending, again.Status)
}

func TestMemoryStoreDropsPlaintextVenueCode(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b := newBooking("b1", model.StatusPending)
	b.VenueCode = "GYM-1234"
	b.VenueCodeHash = "hash"
	require.NoError(t, s.Save(ctx, &ChangeSet{Booking: b}))

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, got.VenueCode)
	assert.Equal(t, "hash", got.VenueCodeHash)
}

func TestMemoryStoreListings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	late := t0.Add(72 * time.Hour)
	early := t0.Add(24 * time.Hour)
	b1 := newBooking("b1", model.StatusPending)
	b1.PaymentDueDate = &late
	b2 := newBooking("b2", model.StatusCounterProposed)
	b2.PaymentDueDate = &early
	b2.RequesterID = "client-2"
	b3 := newBooking("b3", model.StatusConfirmed)
	for _, b := range []*model.Booking{b1, b2, b3} {
		require.NoError(t, s.Save(ctx, &ChangeSet{Booking: b}))
	}

	awaiting, err := s.ListAwaitingDeadline(ctx)
	require.NoError(t, err)
	require.Len(t, awaiting, 2)
	assert.Equal(t, "b2", awaiting[0].ID)
	assert.Equal(t, "b1", awaiting[1].ID)

	pending, err := s.ListByStatus(ctx, model.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b1", pending[0].ID)

	mine, err := s.ListByParty(ctx, "client-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	coach, err := s.ListByParty(ctx, "coach-1")
	require.NoError(t, err)
	assert.Len(t, coach, 3)
}

func TestMemoryStoreChildren(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b := newBooking("b1", model.StatusCounterProposed)

	price := int64(3000)
	cs := &ChangeSet{Booking: b}
	cs.PutProposal(model.Proposal{ID: "p1", BookingID: "b1", Status: model.ProposalPending, Round: 1,
		Changes: model.Changes{PriceCents: &price}, CreatedAt: t0, ExpiresAt: t0.Add(48 * time.Hour)})
	cs.PutProposal(model.Proposal{ID: "p0", BookingID: "b1", Status: model.ProposalExpired, Round: 0,
		CreatedAt: t0, ExpiresAt: t0})
	cs.PutReminder(model.Reminder{ID: "r2", BookingID: "b1", Seq: 2, FireAt: t0.Add(18 * time.Hour), Status: model.ReminderScheduled})
	cs.PutReminder(model.Reminder{ID: "r1", BookingID: "b1", Seq: 1, FireAt: t0.Add(6 * time.Hour), Status: model.ReminderScheduled})
	cs.History = append(cs.History, model.StatusChange{BookingID: "b1", From: model.StatusPending, To: model.StatusCounterProposed, Trigger: "propose", At: t0})
	require.NoError(t, s.Save(ctx, cs))

	props, err := s.ListProposals(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, "p0", props[0].ID)

	lapsed, err := s.ListLapsedProposals(ctx, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, "p1", lapsed[0].ID)
	none, err := s.ListLapsedProposals(ctx, t0.Add(47*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	rems, err := s.ListReminders(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, rems, 2)
	assert.Equal(t, "r1", rems[0].ID)

	hist, err := s.ListHistory(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "propose", hist[0].Trigger)

	// A proposal update replaces the stored row rather than adding one.
	p, err := s.GetProposal(ctx, "p1")
	require.NoError(t, err)
	*p.Changes.PriceCents = 1
	p.Status = model.ProposalAccepted
	require.NoError(t, s.Save(ctx, &ChangeSet{Proposals: []model.Proposal{*p}}))
	props, err = s.ListProposals(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, props, 2)
	assert.Equal(t, model.ProposalAccepted, props[1].Status)
}

func TestMemoryStoreFailSaves(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("disk on fire")
	s.FailSaves(boom)
	b := newBooking("b1", model.StatusPending)
	assert.ErrorIs(t, s.Save(ctx, &ChangeSet{Booking: b}), boom)
	assert.Equal(t, int64(0), b.Version)
	_, err := s.GetBooking(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)

	s.FailSaves(nil)
	assert.NoError(t, s.Save(ctx, &ChangeSet{Booking: b}))
}
