package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitbook/internal/model"
)

var bookingCols = []string{
	"id", "requester_id", "provider_id", "kind", "title", "session_date", "session_time",
	"duration_minutes", "venue_id", "price_cents", "currency", "payment_method", "payment_status", "payment_ref",
	"cancellation_policy", "status", "pre_proposal_status", "active_proposal_id", "negotiation_rounds", "reason",
	"cancelled_by", "payment_due_date", "reminder_checkpoint", "window_opened_at", "payment_attempt", "venue_code_hash",
	"created_at", "updated_at",
	"confirmed_at", "cancelled_at", "completed_at", "version",
}

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMySQLStore(db), mock
}

func bookingRow(id string, due *time.Time) []driver.Value {
	var dueVal driver.Value
	if due != nil {
		dueVal = *due
	}
	return []driver.Value{
		id, "client-1", "coach-1", "class", nil, "2026-03-10", "10:00",
		60, "gym-1", int64(2500), "USD", "pay_at_venue", "pending", nil,
		"moderate", "pending", nil, nil, 0, nil,
		nil, dueVal, dueVal, t0, nil, "$2a$hash",
		t0, t0,
		nil, nil, nil, int64(4),
	}
}

func TestMySQLGetBooking(t *testing.T) {
	s, mock := newMockStore(t)
	due := t0.Add(24 * time.Hour)
	mock.ExpectQuery(`SELECT .* FROM bookings WHERE id = \?`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(bookingRow("b1", &due)...))

	b, err := s.GetBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, model.KindClass, b.Kind)
	assert.Equal(t, model.PaymentPayAtVenue, b.PaymentMethod)
	assert.Equal(t, model.StatusPending, b.Status)
	require.NotNil(t, b.PaymentDueDate)
	assert.True(t, due.Equal(*b.PaymentDueDate))
	assert.Nil(t, b.ConfirmedAt)
	assert.Empty(t, b.ActiveProposalID)
	assert.Equal(t, int64(4), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLGetBookingNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM bookings WHERE id = \?`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(bookingCols))

	_, err := s.GetBooking(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLListAwaitingDeadline(t *testing.T) {
	s, mock := newMockStore(t)
	d1 := t0.Add(24 * time.Hour)
	d2 := t0.Add(48 * time.Hour)
	mock.ExpectQuery(`WHERE payment_due_date IS NOT NULL ORDER BY payment_due_date`).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow(bookingRow("b1", &d1)...).
			AddRow(bookingRow("b2", &d2)...))

	list, err := s.ListAwaitingDeadline(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b1", list[0].ID)
	assert.Equal(t, "b2", list[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLGetProposalDecodesChanges(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "booking_id", "proposed_by", "actor_id", "changes", "keep_original", "message",
		"status", "round", "response_message", "responded_by", "responded_at", "superseded_by", "created_at", "expires_at"}
	mock.ExpectQuery(`FROM booking_proposals WHERE id = \?`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"p1", "b1", "provider", "coach-1", []byte(`{"time":"11:00","price_cents":3000}`), false, "later?",
			"pending", 1, nil, nil, nil, nil, t0, t0.Add(48*time.Hour)))

	p, err := s.GetProposal(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, p.Changes.Time)
	assert.Equal(t, "11:00", *p.Changes.Time)
	require.NotNil(t, p.Changes.PriceCents)
	assert.Equal(t, int64(3000), *p.Changes.PriceCents)
	assert.Nil(t, p.Changes.Date)
	assert.Equal(t, model.PartyProvider, p.ProposedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSaveCreatesInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	b := newBooking("b1", model.StatusCounterProposed)
	b.PaymentMethod = model.PaymentCard
	b.PaymentStatus = model.PaymentPending
	b.CancellationPolicy = model.CancelFlexible

	cs := &ChangeSet{Booking: b}
	cs.PutProposal(model.Proposal{ID: "p1", BookingID: "b1", ProposedBy: model.PartyProvider, ActorID: "coach-1",
		Status: model.ProposalPending, Round: 1, CreatedAt: t0, ExpiresAt: t0.Add(48 * time.Hour)})
	cs.PutReminder(model.Reminder{ID: "r1", BookingID: "b1", Seq: 1, FireAt: t0.Add(6 * time.Hour), Status: model.ReminderScheduled})
	cs.History = []model.StatusChange{{BookingID: "b1", From: model.StatusPending, To: model.StatusCounterProposed, Trigger: "propose", At: t0}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO booking_proposals .* ON DUPLICATE KEY UPDATE`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO booking_reminders .* ON DUPLICATE KEY UPDATE`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO booking_status_history`).
		WithArgs("b1", "pending", "counter_proposed", "propose", nil, nil, t0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), cs))
	assert.Equal(t, int64(1), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSaveConflictRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	b := newBooking("b1", model.StatusConfirmed)
	b.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET .* WHERE id = \? AND version = \?`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Save(context.Background(), &ChangeSet{Booking: b})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(2), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSaveChildFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	b := newBooking("b1", model.StatusConfirmed)
	b.Version = 1
	cs := &ChangeSet{Booking: b, History: []model.StatusChange{{BookingID: "b1", From: model.StatusPending, To: model.StatusConfirmed, Trigger: "accept", At: t0}}}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO booking_status_history`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.Save(context.Background(), cs)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(1), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
