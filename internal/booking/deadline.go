package booking

import (
	"context"
	"time"

	"github.com/iliyamo/fitbook/internal/deadline"
	"github.com/iliyamo/fitbook/internal/model"
	"github.com/iliyamo/fitbook/internal/utils"
)

// syncDeadline keeps the payment wait consistent with the booking: a
// pay-at-venue booking that is pending or counter-proposed has a due date
// and a reminder schedule, any other booking has neither. Opening happens
// once per wait; moving between the two waiting statuses keeps the
// existing due date.
func (t *txn) syncDeadline() error {
	b := t.b
	want := b.Status.AwaitingResolution() && b.PaymentMethod == model.PaymentPayAtVenue
	switch {
	case want && b.PaymentDueDate == nil:
		return t.openWait()
	case !want && b.PaymentDueDate != nil:
		return t.closeWait()
	}
	return nil
}

// openWait starts the pay-at-venue wait. The first wait fixes the window;
// a wait reopened after switching away from pay at venue keeps its due
// date and is refused once that date has passed.
func (t *txn) openWait() error {
	b := t.b
	policy := t.e.cfg.Policy
	opened := t.now
	if b.WindowOpenedAt != nil {
		opened = *b.WindowOpenedAt
	}
	due := policy.DueDate(b.Kind, opened)
	if !due.After(t.now) {
		return newError(KindDeadlineAlreadyPassed, t.op, "the payment window for this booking closed at %s", due.Format(time.RFC3339))
	}
	b.WindowOpenedAt = model.TimePtr(opened)
	b.PaymentDueDate = model.TimePtr(due)
	b.ReminderCheckpoint = model.TimePtr(t.now)

	rs, err := t.reminders()
	if err != nil {
		return err
	}
	next := 1
	for _, r := range rs {
		if r.Seq >= next {
			next = r.Seq + 1
		}
	}
	for _, r := range policy.Schedule(b.ID, t.now, due) {
		r.Seq += next - 1
		t.cs.PutReminder(r)
	}

	payload := map[string]any{
		"due_date":    due,
		"grace_hours": policy.GraceFor(b.Kind).Hours(),
		"amount":      b.PriceCents,
		"currency":    b.Currency,
	}
	if err := t.issueVenueCode(payload); err != nil {
		return err
	}
	t.touch()
	t.emit(model.EventPaymentRequired, model.PartyRequester, payload)
	return nil
}

// issueVenueCode gives the booking a venue payment code when it has none
// and adds the plaintext to payload. An existing code is kept.
func (t *txn) issueVenueCode(payload map[string]any) error {
	b := t.b
	if b.VenueCodeHash != "" {
		return nil
	}
	code, hash, err := utils.NewVenueCode(t.e.cfg.VenueCodeCost)
	if err != nil {
		return &Error{Kind: KindInvalidState, Op: t.op, Msg: "could not issue a payment code", Err: err}
	}
	b.VenueCodeHash = hash
	b.VenueCode = code
	payload["venue_code"] = code
	return nil
}

func (t *txn) closeWait() error {
	t.b.PaymentDueDate = nil
	t.b.ReminderCheckpoint = nil
	rs, err := t.reminders()
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.Status != model.ReminderScheduled {
			continue
		}
		r.Status = model.ReminderCancelled
		r.FiredAt = model.TimePtr(t.now)
		t.cs.PutReminder(r)
	}
	t.touch()
	return nil
}

func (t *txn) deadlinePassed() bool {
	d := t.b.PaymentDueDate
	return d != nil && t.b.Status.AwaitingResolution() && !t.now.Before(*d)
}

// checkDeadline refuses human actions on a booking whose payment deadline
// has been reached. If the sweep has not expired it yet, the expiry is
// applied here and committed even though the action is refused.
func (t *txn) checkDeadline() error {
	if t.b.Status == model.StatusExpired {
		return newError(KindDeadlineAlreadyPassed, t.op, "the payment deadline for this booking has passed")
	}
	if !t.deadlinePassed() {
		return nil
	}
	if err := t.expire(); err != nil {
		return err
	}
	t.commitAnyway = true
	return newError(KindDeadlineAlreadyPassed, t.op, "the payment deadline for this booking has passed")
}

// expire ends a waiting booking whose deadline was reached. An open
// proposal expires with it.
func (t *txn) expire() error {
	if id := t.b.ActiveProposalID; id != "" {
		p, err := t.proposal(id)
		if err != nil {
			return err
		}
		p.Status = model.ProposalExpired
		p.RespondedAt = model.TimePtr(t.now)
		t.track(p)
		t.b.ActiveProposalID = ""
	}
	due := *t.b.PaymentDueDate
	if err := t.transitionAs(TriggerExpire, "", "payment deadline passed"); err != nil {
		return err
	}
	t.emitBoth(model.EventBookingExpired, map[string]any{"due_date": due})
	return nil
}

func (t *txn) lapsed(p *model.Proposal) bool {
	return p.Status == model.ProposalPending && !t.now.Before(p.ExpiresAt)
}

// lapse expires an unanswered proposal and returns the booking to the
// status it had before the negotiation.
func (t *txn) lapse(p *model.Proposal) error {
	p.Status = model.ProposalExpired
	p.RespondedAt = model.TimePtr(t.now)
	t.track(p)
	if t.b.ActiveProposalID == p.ID {
		t.b.ActiveProposalID = ""
	}
	if err := t.revertAs("", "proposal expired"); err != nil {
		return err
	}
	t.emitBoth(model.EventProposalExpired, map[string]any{"proposal_id": p.ID})
	return nil
}

// revertAs returns a negotiating booking to its pre-proposal status.
func (t *txn) revertAs(actorID, reason string) error {
	if pre := t.b.PreProposalStatus; pre != "" && !Allowed(TriggerRevert, t.b.Status, pre) {
		return newError(KindInvalidState, t.op, "cannot return a %s booking to %s", t.b.Status, pre)
	}
	return t.transitionAs(TriggerRevert, actorID, reason)
}

// DeadlineOutcome reports what one deadline evaluation did.
type DeadlineOutcome struct {
	Expired  bool
	Reminded bool
	Skipped  int
}

// ProcessDeadline evaluates one waiting booking at the current instant:
// it expires the booking once the deadline is reached, otherwise it fires
// the latest reminder that became due since the last evaluation. Running
// it twice at the same instant changes nothing the second time.
func (e *Engine) ProcessDeadline(ctx context.Context, bookingID string) (DeadlineOutcome, error) {
	var out DeadlineOutcome
	_, err := e.mutate(ctx, "process deadline", bookingID, "", func(t *txn) error {
		b := t.b
		if b.PaymentDueDate == nil || !b.Status.AwaitingResolution() {
			return nil
		}
		if t.deadlinePassed() {
			out.Expired = true
			return t.expire()
		}

		rs, err := t.reminders()
		if err != nil {
			return err
		}
		sel := deadline.Select(rs, b.ReminderCheckpoint, t.now)
		if sel.Fire < 0 && len(sel.Skip) == 0 {
			return nil
		}
		for _, i := range sel.Skip {
			r := rs[i]
			r.Status = model.ReminderSkipped
			r.FiredAt = model.TimePtr(t.now)
			t.cs.PutReminder(r)
		}
		out.Skipped = len(sel.Skip)
		if sel.Fire >= 0 {
			r := rs[sel.Fire]
			r.Status = model.ReminderFired
			r.FiredAt = model.TimePtr(t.now)
			t.cs.PutReminder(r)
			t.emit(model.EventPaymentReminder, model.PartyRequester, map[string]any{
				"due_date":   *b.PaymentDueDate,
				"final":      r.Final,
				"seq":        r.Seq,
				"hours_left": b.PaymentDueDate.Sub(t.now).Hours(),
			})
			out.Reminded = true
		}
		b.ReminderCheckpoint = model.TimePtr(t.now)
		t.touch()
		return nil
	})
	return out, err
}

// ExpireProposal lapses a proposal whose response window has closed. It
// reports whether anything changed. If the booking's payment deadline has
// also passed, the booking expires instead.
func (e *Engine) ExpireProposal(ctx context.Context, proposalID string) (bool, error) {
	const op = "expire proposal"
	p0, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return false, e.storeError(op, err)
	}
	changed := false
	_, err = e.mutate(ctx, op, p0.BookingID, "", func(t *txn) error {
		if t.deadlinePassed() {
			changed = true
			return t.expire()
		}
		p, err := t.proposal(proposalID)
		if err != nil {
			return err
		}
		if t.b.ActiveProposalID != p.ID || !t.lapsed(p) {
			return nil
		}
		changed = true
		return t.lapse(p)
	})
	return changed, err
}
