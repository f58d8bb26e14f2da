// Package booking implements the booking lifecycle: the status machine,
// proposal negotiation between requester and provider, and the
// deadline-driven expiry of pay-at-venue bookings. Every change to a
// booking goes through Engine, which serialises work per booking, commits
// each operation atomically and emits notifications after the commit.
package booking

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/fitbook/internal/deadline"
	"github.com/iliyamo/fitbook/internal/lock"
	"github.com/iliyamo/fitbook/internal/model"
	"github.com/iliyamo/fitbook/internal/notify"
	"github.com/iliyamo/fitbook/internal/payment"
	"github.com/iliyamo/fitbook/internal/repository"
)

// Config holds the tunable business rules of the engine.
//
//	Policy        – grace windows and reminder schedule for pay-at-venue waits.
//	ProposalTTL   – how long a proposal stays open before it lapses.
//	MaxRounds     – proposals allowed per booking; 0 means unbounded.
//	CancelNotice  – minimum notice before the session start per policy.
//	VenueCodeCost – bcrypt cost for pay-at-venue codes.
type Config struct {
	Policy        deadline.Policy
	ProposalTTL   time.Duration
	MaxRounds     int
	CancelNotice  map[model.CancellationPolicy]time.Duration
	VenueCodeCost int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Policy:      deadline.DefaultPolicy(),
		ProposalTTL: 48 * time.Hour,
		MaxRounds:   5,
		CancelNotice: map[model.CancellationPolicy]time.Duration{
			model.CancelFlexible: 0,
			model.CancelModerate: 24 * time.Hour,
			model.CancelStrict:   48 * time.Hour,
		},
		VenueCodeCost: bcrypt.DefaultCost,
	}
}

// Engine owns every state change of a booking.
type Engine struct {
	store    repository.Store
	locker   lock.Locker
	clock    clockwork.Clock
	notifier notify.Dispatcher
	gateway  payment.Gateway
	cfg      Config
}

// NewEngine wires an engine. Nil collaborators fall back to an in-process
// lock, the real clock, the log dispatcher and the stub gateway.
func NewEngine(store repository.Store, locker lock.Locker, clock clockwork.Clock, notifier notify.Dispatcher, gateway payment.Gateway, cfg Config) *Engine {
	if store == nil {
		panic("nil store passed to NewEngine")
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if notifier == nil {
		notifier = notify.Log{}
	}
	if gateway == nil {
		gateway = payment.NewStub()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 48 * time.Hour
	}
	if cfg.CancelNotice == nil {
		cfg.CancelNotice = DefaultConfig().CancelNotice
	}
	if cfg.VenueCodeCost == 0 {
		cfg.VenueCodeCost = bcrypt.DefaultCost
	}
	return &Engine{store: store, locker: locker, clock: clock, notifier: notifier, gateway: gateway, cfg: cfg}
}

// Policy returns the deadline policy in force.
func (e *Engine) Policy() deadline.Policy { return e.cfg.Policy }

func (e *Engine) now() time.Time { return e.clock.Now().UTC() }

func lockKey(bookingID string) string { return "booking:" + bookingID }

// mutate runs fn against a freshly loaded booking while holding the
// booking's lock, commits what fn recorded and then dispatches the
// resulting events. When fn fails nothing is committed, unless fn set
// commitAnyway (an inline expiry that must persist even though the
// requested action is refused). A refused action whose error asks the
// caller to refresh returns the booking as stored.
func (e *Engine) mutate(ctx context.Context, op, bookingID, actorID string, fn func(t *txn) error) (*model.Booking, error) {
	var current *model.Booking
	t, ferr := func() (*txn, error) {
		release, err := e.locker.Acquire(ctx, lockKey(bookingID))
		if err != nil {
			return nil, wrapError(KindStoreUnavailable, op, err)
		}
		defer release()

		b, err := e.store.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, e.storeError(op, err)
		}
		current = b.Clone()
		t := e.begin(ctx, op, actorID, b)
		ferr := fn(t)
		if ferr != nil && !t.commitAnyway {
			return nil, ferr
		}
		if err := t.commit(); err != nil {
			return nil, err
		}
		return t, ferr
	}()
	if t == nil {
		if current != nil && NeedsRefresh(ferr) && KindOf(ferr) != KindConflict {
			if _, ok := current.PartyOf(actorID); ok {
				return current, ferr
			}
		}
		return nil, ferr
	}
	e.dispatch(ctx, t.events)
	return t.b.Clone(), ferr
}

func (e *Engine) storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Msg: "not found", Err: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Kind: KindConflict, Op: op, Msg: "booking was changed concurrently", Err: err}
	}
	return wrapError(KindStoreUnavailable, op, err)
}

// dispatch hands committed events to the notifier. Failures are logged
// and never surface to the caller; the change is already durable.
func (e *Engine) dispatch(ctx context.Context, events []model.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		if err := e.notifier.Notify(ctx, ev); err != nil {
			nerr := &Error{Kind: KindNotificationDeliveryFailed, Op: string(ev.Type), Msg: "notification not delivered", Err: err}
			log.Printf("booking: %v (booking=%s recipient=%s)", nerr, ev.BookingID, ev.RecipientID)
		}
	}
}

// txn collects the effects of one operation on one booking.
type txn struct {
	e     *Engine
	ctx   context.Context
	op    string
	actor string
	now   time.Time
	b     *model.Booking

	cs        repository.ChangeSet
	events    []model.Event
	dirty     bool
	props     map[string]*model.Proposal
	propOrder []string
	rems      []model.Reminder
	remsOK    bool

	commitAnyway bool
}

func (e *Engine) begin(ctx context.Context, op, actorID string, b *model.Booking) *txn {
	return &txn{e: e, ctx: ctx, op: op, actor: actorID, now: e.now(), b: b, props: map[string]*model.Proposal{}}
}

func (t *txn) touch() {
	t.b.UpdatedAt = t.now
	t.dirty = true
}

func (t *txn) commit() error {
	for _, id := range t.propOrder {
		t.cs.PutProposal(*t.props[id])
	}
	if t.dirty {
		if err := CheckBooking(t.b); err != nil {
			return &Error{Kind: KindInvalidState, Op: t.op, Msg: "refusing to commit an inconsistent booking", Err: err}
		}
		t.cs.Booking = t.b
	}
	if t.cs.Empty() {
		return nil
	}
	if err := t.e.store.Save(t.ctx, &t.cs); err != nil {
		return t.e.storeError(t.op, err)
	}
	return nil
}

// party resolves the acting user's side of the booking.
func (t *txn) party() (model.Party, error) {
	p, ok := t.b.PartyOf(t.actor)
	if !ok {
		return "", newError(KindUnauthorizedActor, t.op, "you are not a party to this booking")
	}
	return p, nil
}

func (t *txn) requireParty(want model.Party, msg string) error {
	p, err := t.party()
	if err != nil {
		return err
	}
	if p != want {
		return newError(KindUnauthorizedActor, t.op, "%s", msg)
	}
	return nil
}

// proposal loads a proposal of this booking; later calls return the same
// working copy.
func (t *txn) proposal(id string) (*model.Proposal, error) {
	if p, ok := t.props[id]; ok {
		return p, nil
	}
	p, err := t.e.store.GetProposal(t.ctx, id)
	if err != nil {
		return nil, t.e.storeError(t.op, err)
	}
	if p.BookingID != t.b.ID {
		return nil, newError(KindNotFound, t.op, "proposal not found")
	}
	t.props[id] = p
	return p, nil
}

// track marks p as changed so it is written on commit.
func (t *txn) track(p *model.Proposal) {
	if _, ok := t.props[p.ID]; !ok {
		t.props[p.ID] = p
	}
	for _, id := range t.propOrder {
		if id == p.ID {
			return
		}
	}
	t.propOrder = append(t.propOrder, p.ID)
}

// reminders returns the booking's reminder records, including the ones
// created or changed earlier in this operation.
func (t *txn) reminders() ([]model.Reminder, error) {
	if !t.remsOK {
		rs, err := t.e.store.ListReminders(t.ctx, t.b.ID)
		if err != nil {
			return nil, t.e.storeError(t.op, err)
		}
		t.rems = rs
		t.remsOK = true
	}
	out := make([]model.Reminder, 0, len(t.rems)+len(t.cs.Reminders))
	pending := map[string]model.Reminder{}
	for _, r := range t.cs.Reminders {
		pending[r.ID] = r
	}
	for _, r := range t.rems {
		if c, ok := pending[r.ID]; ok {
			out = append(out, c)
			delete(pending, r.ID)
			continue
		}
		out = append(out, r)
	}
	for _, r := range t.cs.Reminders {
		if _, ok := pending[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// transition moves the booking along the table on behalf of the acting user.
func (t *txn) transition(trig Trigger, reason string) error {
	return t.transitionAs(trig, t.actor, reason)
}

func (t *txn) transitionAs(trig Trigger, actorID string, reason string) error {
	from := t.b.Status
	to, ok := Next(from, trig)
	if !ok {
		return newError(KindInvalidTransition, t.op, "cannot %s a booking that is %s", trig, from)
	}
	if to.Negotiating() && t.b.ActiveProposalID == "" {
		return newError(KindInvalidState, t.op, "a %s booking needs a pending proposal", to)
	}
	if from.Negotiating() && !to.Negotiating() && t.b.ActiveProposalID != "" {
		return newError(KindInvalidState, t.op, "the pending proposal must be resolved first")
	}

	t.b.Status = to
	if !to.Negotiating() {
		t.b.PreProposalStatus = ""
	}
	switch to {
	case model.StatusConfirmed:
		if t.b.ConfirmedAt == nil {
			t.b.ConfirmedAt = model.TimePtr(t.now)
		}
	case model.StatusCancelled:
		t.b.CancelledAt = model.TimePtr(t.now)
	case model.StatusCompleted, model.StatusNoShow:
		t.b.CompletedAt = model.TimePtr(t.now)
	}
	switch to {
	case model.StatusRejected, model.StatusCancelled, model.StatusExpired:
		if reason != "" {
			t.b.Reason = reason
		}
	}
	t.touch()
	t.cs.History = append(t.cs.History, model.StatusChange{
		BookingID: t.b.ID,
		From:      from,
		To:        to,
		Trigger:   string(trig),
		ActorID:   actorID,
		Reason:    reason,
		At:        t.now,
	})
	return t.syncDeadline()
}

// emit queues an event for the participant on side `to`.
func (t *txn) emit(typ model.EventType, to model.Party, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["status"]; !ok {
		payload["status"] = string(t.b.Status)
	}
	t.events = append(t.events, model.Event{
		ID:          uuid.NewString(),
		Type:        typ,
		BookingID:   t.b.ID,
		RecipientID: t.b.ParticipantID(to),
		Payload:     payload,
		OccurredAt:  t.now,
	})
}

// emitBoth queues the same event for requester and provider.
func (t *txn) emitBoth(typ model.EventType, payload map[string]any) {
	for _, p := range []model.Party{model.PartyRequester, model.PartyProvider} {
		cp := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			cp[k] = v
		}
		t.emit(typ, p, cp)
	}
}
