package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/fitbook/internal/model"
)

// MySQLStore persists bookings in MySQL. Every Save runs in one
// transaction so a booking, its proposals, reminders and history rows
// are committed together. All timestamps are stored in UTC (the DSN built
// by database.Open sets loc=UTC).
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a MySQLStore bound to the given database.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

const bookingColumns = `id, requester_id, provider_id, kind, title, session_date, session_time,
	duration_minutes, venue_id, price_cents, currency, payment_method, payment_status, payment_ref,
	cancellation_policy, status, pre_proposal_status, active_proposal_id, negotiation_rounds, reason,
	cancelled_by, payment_due_date, reminder_checkpoint, window_opened_at, payment_attempt, venue_code_hash,
	created_at, updated_at, confirmed_at, cancelled_at, completed_at, version`

const proposalColumns = `id, booking_id, proposed_by, actor_id, changes, keep_original, message,
	status, round, response_message, responded_by, responded_at, superseded_by, created_at, expires_at`

const reminderColumns = `id, booking_id, seq, fire_at, final, status, fired_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(r rowScanner) (*model.Booking, error) {
	var (
		b                                              model.Booking
		title, payRef, preStatus, activeID, reason, by sql.NullString
		codeHash, attempt                              sql.NullString
		due, checkpoint, opened                        sql.NullTime
		confirmed, cancelled, complete                 sql.NullTime
	)
	err := r.Scan(
		&b.ID, &b.RequesterID, &b.ProviderID, &b.Kind, &title, &b.Date, &b.Time,
		&b.DurationMinutes, &b.VenueID, &b.PriceCents, &b.Currency, &b.PaymentMethod, &b.PaymentStatus, &payRef,
		&b.CancellationPolicy, &b.Status, &preStatus, &activeID, &b.NegotiationRounds, &reason,
		&by, &due, &checkpoint, &opened, &attempt, &codeHash,
		&b.CreatedAt, &b.UpdatedAt, &confirmed, &cancelled, &complete, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Title = title.String
	b.PaymentRef = payRef.String
	b.PreProposalStatus = model.Status(preStatus.String)
	b.ActiveProposalID = activeID.String
	b.Reason = reason.String
	b.CancelledBy = model.Party(by.String)
	b.VenueCodeHash = codeHash.String
	b.PaymentAttempt = attempt.String
	b.WindowOpenedAt = fromNullTime(opened)
	b.PaymentDueDate = fromNullTime(due)
	b.ReminderCheckpoint = fromNullTime(checkpoint)
	b.ConfirmedAt = fromNullTime(confirmed)
	b.CancelledAt = fromNullTime(cancelled)
	b.CompletedAt = fromNullTime(complete)
	return &b, nil
}

func scanProposal(r rowScanner) (*model.Proposal, error) {
	var (
		p                             model.Proposal
		changes                       []byte
		message, respMsg, respBy, sup sql.NullString
		respAt                        sql.NullTime
	)
	err := r.Scan(&p.ID, &p.BookingID, &p.ProposedBy, &p.ActorID, &changes, &p.KeepOriginal, &message,
		&p.Status, &p.Round, &respMsg, &respBy, &respAt, &sup, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &p.Changes); err != nil {
			return nil, fmt.Errorf("decode proposal changes: %w", err)
		}
	}
	p.Message = message.String
	p.ResponseMessage = respMsg.String
	p.RespondedBy = respBy.String
	p.RespondedAt = fromNullTime(respAt)
	p.SupersededBy = sup.String
	return &p, nil
}

func scanReminder(r rowScanner) (*model.Reminder, error) {
	var (
		rem   model.Reminder
		fired sql.NullTime
	)
	if err := r.Scan(&rem.ID, &rem.BookingID, &rem.Seq, &rem.FireAt, &rem.Final, &rem.Status, &fired); err != nil {
		return nil, err
	}
	rem.FiredAt = fromNullTime(fired)
	return &rem, nil
}

func (s *MySQLStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *MySQLStore) ListByStatus(ctx context.Context, status model.Status) ([]model.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE status = ? ORDER BY created_at, id`, string(status))
}

func (s *MySQLStore) ListByParty(ctx context.Context, partyID string) ([]model.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE requester_id = ? OR provider_id = ? ORDER BY created_at, id`, partyID, partyID)
}

func (s *MySQLStore) ListAwaitingDeadline(ctx context.Context) ([]model.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE payment_due_date IS NOT NULL ORDER BY payment_due_date, id`)
}

func (s *MySQLStore) queryBookings(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *MySQLStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM booking_proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *MySQLStore) ListProposals(ctx context.Context, bookingID string) ([]model.Proposal, error) {
	return s.queryProposals(ctx, `SELECT `+proposalColumns+` FROM booking_proposals
		WHERE booking_id = ? ORDER BY round, created_at`, bookingID)
}

func (s *MySQLStore) ListLapsedProposals(ctx context.Context, now time.Time) ([]model.Proposal, error) {
	return s.queryProposals(ctx, `SELECT `+proposalColumns+` FROM booking_proposals
		WHERE status = 'pending' AND expires_at <= ? ORDER BY expires_at`, now.UTC())
}

func (s *MySQLStore) queryProposals(ctx context.Context, q string, args ...any) ([]model.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *MySQLStore) ListReminders(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderColumns+` FROM booking_reminders
		WHERE booking_id = ? ORDER BY fire_at, seq`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reminder, 0)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *MySQLStore) ListHistory(ctx context.Context, bookingID string) ([]model.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT booking_id, from_status, to_status, trigger_name, actor_id, reason, changed_at
		FROM booking_status_history WHERE booking_id = ? ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.StatusChange, 0)
	for rows.Next() {
		var (
			h             model.StatusChange
			actor, reason sql.NullString
		)
		if err := rows.Scan(&h.BookingID, &h.From, &h.To, &h.Trigger, &actor, &reason, &h.At); err != nil {
			return nil, err
		}
		h.ActorID = actor.String
		h.Reason = reason.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// Save writes the change set inside a single transaction. The booking row
// is guarded by its version column; when no row matches the expected
// version the transaction is rolled back and ErrConflict is returned.
func (s *MySQLStore) Save(ctx context.Context, cs *ChangeSet) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if cs.Booking != nil {
		if err = s.saveBookingTx(ctx, tx, cs.Booking); err != nil {
			return err
		}
	}
	for i := range cs.Proposals {
		if err = s.upsertProposalTx(ctx, tx, &cs.Proposals[i]); err != nil {
			return err
		}
	}
	for i := range cs.Reminders {
		if err = s.upsertReminderTx(ctx, tx, &cs.Reminders[i]); err != nil {
			return err
		}
	}
	for i := range cs.History {
		if err = s.insertHistoryTx(ctx, tx, &cs.History[i]); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	if cs.Booking != nil {
		cs.Booking.Version++
	}
	return nil
}

func (s *MySQLStore) saveBookingTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	vals := []any{
		b.RequesterID, b.ProviderID, string(b.Kind), nullStr(b.Title), b.Date, b.Time,
		b.DurationMinutes, b.VenueID, b.PriceCents, b.Currency, string(b.PaymentMethod), string(b.PaymentStatus), nullStr(b.PaymentRef),
		string(b.CancellationPolicy), string(b.Status), nullStr(string(b.PreProposalStatus)), nullStr(b.ActiveProposalID), b.NegotiationRounds, nullStr(b.Reason),
		nullStr(string(b.CancelledBy)), nullTime(b.PaymentDueDate), nullTime(b.ReminderCheckpoint), nullTime(b.WindowOpenedAt), nullStr(b.PaymentAttempt), nullStr(b.VenueCodeHash),
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(), nullTime(b.ConfirmedAt), nullTime(b.CancelledAt), nullTime(b.CompletedAt),
	}
	if b.Version == 0 {
		const q = `INSERT INTO bookings (` + bookingColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
		_, err := tx.ExecContext(ctx, q, append([]any{b.ID}, vals...)...)
		return err
	}
	const q = `UPDATE bookings SET requester_id = ?, provider_id = ?, kind = ?, title = ?, session_date = ?, session_time = ?,
		duration_minutes = ?, venue_id = ?, price_cents = ?, currency = ?, payment_method = ?, payment_status = ?, payment_ref = ?,
		cancellation_policy = ?, status = ?, pre_proposal_status = ?, active_proposal_id = ?, negotiation_rounds = ?, reason = ?,
		cancelled_by = ?, payment_due_date = ?, reminder_checkpoint = ?, window_opened_at = ?, payment_attempt = ?, venue_code_hash = ?,
		created_at = ?, updated_at = ?,
		confirmed_at = ?, cancelled_at = ?, completed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, q, append(vals, b.ID, b.Version)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *MySQLStore) upsertProposalTx(ctx context.Context, tx *sql.Tx, p *model.Proposal) error {
	changes, err := json.Marshal(p.Changes)
	if err != nil {
		return fmt.Errorf("encode proposal changes: %w", err)
	}
	const q = `INSERT INTO booking_proposals (` + proposalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), response_message = VALUES(response_message),
			responded_by = VALUES(responded_by), responded_at = VALUES(responded_at), superseded_by = VALUES(superseded_by)`
	_, err = tx.ExecContext(ctx, q,
		p.ID, p.BookingID, string(p.ProposedBy), p.ActorID, changes, p.KeepOriginal, nullStr(p.Message),
		string(p.Status), p.Round, nullStr(p.ResponseMessage), nullStr(p.RespondedBy), nullTime(p.RespondedAt),
		nullStr(p.SupersededBy), p.CreatedAt.UTC(), p.ExpiresAt.UTC())
	return err
}

func (s *MySQLStore) upsertReminderTx(ctx context.Context, tx *sql.Tx, r *model.Reminder) error {
	const q = `INSERT INTO booking_reminders (` + reminderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), fired_at = VALUES(fired_at)`
	_, err := tx.ExecContext(ctx, q, r.ID, r.BookingID, r.Seq, r.FireAt.UTC(), r.Final, string(r.Status), nullTime(r.FiredAt))
	return err
}

func (s *MySQLStore) insertHistoryTx(ctx context.Context, tx *sql.Tx, h *model.StatusChange) error {
	const q = `INSERT INTO booking_status_history (booking_id, from_status, to_status, trigger_name, actor_id, reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, h.BookingID, string(h.From), string(h.To), h.Trigger, nullStr(h.ActorID), nullStr(h.Reason), h.At.UTC())
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
