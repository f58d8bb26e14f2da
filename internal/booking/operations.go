package booking

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/fitbook/internal/model"
	"github.com/iliyamo/fitbook/internal/payment"
	"github.com/iliyamo/fitbook/internal/utils"
)

// CreateRequest describes a new booking. Unless Draft is set the booking
// is submitted to the provider straight away.
type CreateRequest struct {
	RequesterID        string
	ProviderID         string
	Kind               model.Kind
	Title              string
	Terms              model.Terms
	PaymentMethod      model.PaymentMethod
	CancellationPolicy model.CancellationPolicy
	Draft              bool
}

func validateTerms(t model.Terms) error {
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", t.Time); err != nil {
		return fmt.Errorf("time must be HH:MM")
	}
	if t.DurationMinutes <= 0 || t.DurationMinutes > 24*60 {
		return fmt.Errorf("duration must be between 1 and 1440 minutes")
	}
	if strings.TrimSpace(t.VenueID) == "" {
		return fmt.Errorf("venue is required")
	}
	if t.PriceCents < 0 {
		return fmt.Errorf("price cannot be negative")
	}
	if len(t.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code")
	}
	return nil
}

// CreateBooking records a new booking request.
func (e *Engine) CreateBooking(ctx context.Context, req CreateRequest) (*model.Booking, error) {
	const op = "create booking"
	if req.RequesterID == "" || req.ProviderID == "" {
		return nil, newError(KindInvalidInput, op, "requester and provider are required")
	}
	if req.RequesterID == req.ProviderID {
		return nil, newError(KindInvalidInput, op, "requester and provider must differ")
	}
	if !req.Kind.Valid() {
		return nil, newError(KindInvalidInput, op, "unknown booking kind %q", req.Kind)
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = model.PaymentCard
	}
	if !req.PaymentMethod.Valid() {
		return nil, newError(KindInvalidInput, op, "unknown payment method %q", req.PaymentMethod)
	}
	if req.CancellationPolicy == "" {
		req.CancellationPolicy = model.CancelModerate
	}
	if _, ok := e.cfg.CancelNotice[req.CancellationPolicy]; !ok {
		return nil, newError(KindInvalidInput, op, "unknown cancellation policy %q", req.CancellationPolicy)
	}
	req.Terms.Currency = strings.ToUpper(req.Terms.Currency)
	if err := validateTerms(req.Terms); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Op: op, Msg: err.Error()}
	}

	now := e.now()
	b := &model.Booking{
		ID:                 uuid.NewString(),
		RequesterID:        req.RequesterID,
		ProviderID:         req.ProviderID,
		Kind:               req.Kind,
		Title:              req.Title,
		Terms:              req.Terms,
		PaymentMethod:      req.PaymentMethod,
		PaymentStatus:      model.PaymentPending,
		CancellationPolicy: req.CancellationPolicy,
		Status:             model.StatusDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	t := e.begin(ctx, op, req.RequesterID, b)
	t.now = now
	t.touch()
	t.cs.History = append(t.cs.History, model.StatusChange{
		BookingID: b.ID, To: model.StatusDraft, Trigger: "create", ActorID: req.RequesterID, At: now,
	})
	if !req.Draft {
		if err := t.transition(TriggerSubmit, ""); err != nil {
			return nil, err
		}
		t.emit(model.EventBookingCreated, model.PartyProvider, map[string]any{"kind": string(b.Kind), "title": b.Title})
	}
	if err := t.commit(); err != nil {
		return nil, err
	}
	e.dispatch(ctx, t.events)
	return t.b.Clone(), nil
}

// SubmitBooking sends a draft to the provider.
func (e *Engine) SubmitBooking(ctx context.Context, bookingID, actorID string) (*model.Booking, error) {
	return e.mutate(ctx, "submit booking", bookingID, actorID, func(t *txn) error {
		if err := t.requireParty(model.PartyRequester, "only the requester can submit this booking"); err != nil {
			return err
		}
		if err := t.transition(TriggerSubmit, ""); err != nil {
			return err
		}
		t.emit(model.EventBookingSubmitted, model.PartyProvider, map[string]any{"kind": string(t.b.Kind), "title": t.b.Title})
		return nil
	})
}

// AcceptBooking confirms a booking. On a pending booking only the provider
// may accept; during a negotiation it accepts the open proposal and must
// come from the party the proposal was sent to.
func (e *Engine) AcceptBooking(ctx context.Context, bookingID, actorID string) (*model.Booking, error) {
	const op = "accept booking"
	return e.mutate(ctx, op, bookingID, actorID, func(t *txn) error {
		party, err := t.party()
		if err != nil {
			return err
		}
		if err := t.checkDeadline(); err != nil {
			return err
		}
		switch t.b.Status {
		case model.StatusPending:
			if party != model.PartyProvider {
				return newError(KindUnauthorizedActor, op, "only the provider can accept this booking")
			}
			if err := t.transition(TriggerAccept, ""); err != nil {
				return err
			}
			t.emit(model.EventBookingAccepted, model.PartyRequester, nil)
			return nil
		case model.StatusCounterProposed, model.StatusModified:
			p, err := t.proposal(t.b.ActiveProposalID)
			if err != nil {
				return err
			}
			if t.lapsed(p) {
				if err := t.lapse(p); err != nil {
					return err
				}
				t.commitAnyway = true
				return newError(KindStaleProposal, op, "the pending proposal has expired")
			}
			if party == p.ProposedBy {
				return newError(KindInvalidTransition, op, "waiting for the other party to answer your proposal")
			}
			return t.acceptProposal(p, "")
		}
		return newError(KindInvalidTransition, op, "cannot accept a booking that is %s", t.b.Status)
	})
}

// RejectBooking declines a booking request. A pending booking can only be
// rejected by the provider; during a negotiation on a pending booking
// either party may walk away, which also rejects the open proposal.
func (e *Engine) RejectBooking(ctx context.Context, bookingID, actorID, reason string) (*model.Booking, error) {
	const op = "reject booking"
	return e.mutate(ctx, op, bookingID, actorID, func(t *txn) error {
		party, err := t.party()
		if err != nil {
			return err
		}
		if err := t.checkDeadline(); err != nil {
			return err
		}
		switch t.b.Status {
		case model.StatusPending:
			if party != model.PartyProvider {
				return newError(KindUnauthorizedActor, op, "only the provider can reject this booking")
			}
		case model.StatusCounterProposed:
			p, err := t.proposal(t.b.ActiveProposalID)
			if err != nil {
				return err
			}
			t.resolve(p, model.ProposalRejected, reason)
		default:
			return newError(KindInvalidTransition, op, "cannot reject a booking that is %s", t.b.Status)
		}
		if err := t.transition(TriggerDecline, reason); err != nil {
			return err
		}
		t.emit(model.EventBookingRejected, party.Counter(), map[string]any{"reason": reason})
		return nil
	})
}

// CancelBooking withdraws a pending or confirmed booking. The cancellation
// must happen before the notice period of the booking's cancellation
// policy begins. A booking that was already paid keeps its payment on hold
// for refund review.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*model.Booking, error) {
	const op = "cancel booking"
	return e.mutate(ctx, op, bookingID, actorID, func(t *txn) error {
		party, err := t.party()
		if err != nil {
			return err
		}
		if err := t.checkDeadline(); err != nil {
			return err
		}
		if _, ok := Next(t.b.Status, TriggerCancel); !ok {
			return newError(KindInvalidTransition, op, "cannot cancel a booking that is %s", t.b.Status)
		}
		if by, ok := t.e.CancellationDeadline(t.b); ok && t.now.After(by) {
			return newError(KindInvalidTransition, op, "the cancellation window closed at %s", by.Format(time.RFC3339))
		}
		t.b.CancelledBy = party
		if t.b.PaymentStatus == model.PaymentCompleted {
			t.b.PaymentStatus = model.PaymentOnHold
		}
		if err := t.transition(TriggerCancel, reason); err != nil {
			return err
		}
		t.emit(model.EventBookingCancelled, party.Counter(), map[string]any{"reason": reason, "cancelled_by": string(party)})
		return nil
	})
}

// CancellationDeadline returns the last instant b may be cancelled, or
// false when the session start cannot be determined.
func (e *Engine) CancellationDeadline(b *model.Booking) (time.Time, bool) {
	start, err := b.SessionStart()
	if err != nil {
		return time.Time{}, false
	}
	return start.Add(-e.cfg.CancelNotice[b.CancellationPolicy]), true
}

// MarkAttendance closes a confirmed booking once the session has started.
func (e *Engine) MarkAttendance(ctx context.Context, bookingID, actorID string, attended bool) (*model.Booking, error) {
	const op = "mark attendance"
	return e.mutate(ctx, op, bookingID, actorID, func(t *txn) error {
		if err := t.requireParty(model.PartyProvider, "only the provider can record attendance"); err != nil {
			return err
		}
		trig, ev := TriggerComplete, model.EventBookingCompleted
		if !attended {
			trig, ev = TriggerNoShow, model.EventBookingNoShow
		}
		if _, ok := Next(t.b.Status, trig); !ok {
			return newError(KindInvalidTransition, op, "cannot record attendance for a booking that is %s", t.b.Status)
		}
		if start, err := t.b.SessionStart(); err == nil && t.now.Before(start) {
			return newError(KindInvalidState, op, "attendance can only be recorded once the session has started")
		}
		if err := t.transition(trig, ""); err != nil {
			return err
		}
		t.emit(ev, model.PartyRequester, nil)
		return nil
	})
}

// SelectPaymentMethod switches how the requester will pay. Choosing pay at
// venue on a waiting booking opens the payment deadline; choosing card
// closes it. A booking switched to pay at venue outside a wait still gets
// a venue code so it can be paid there.
func (e *Engine) SelectPaymentMethod(ctx context.Context, bookingID, actorID string, method model.PaymentMethod) (*model.Booking, error) {
	const op = "select payment method"
	if !method.Valid() {
		return nil, newError(KindInvalidInput, op, "unknown payment method %q", method)
	}
	return e.mutate(ctx, op, bookingID, actorID, func(t *txn) error {
		if err := t.requireParty(model.PartyRequester, "only the requester can choose the payment method"); err != nil {
			return err
		}
		if err := t.checkDeadline(); err != nil {
			return err
		}
		if t.b.Status.Terminal() {
			return newError(KindInvalidState, op, "the booking is %s", t.b.Status)
		}
		if t.b.PaymentStatus == model.PaymentCompleted {
			return newError(KindInvalidState, op, "the booking is already paid")
		}
		if t.b.PaymentStatus == model.PaymentProcessing {
			return newError(KindInvalidState, op, "a card payment is still being processed")
		}
		if t.b.PaymentMethod == method {
			return nil
		}
		t.b.PaymentMethod = method
		t.touch()
		if err := t.syncDeadline(); err != nil {
			return err
		}
		if method == model.PaymentPayAtVenue && t.b.VenueCodeHash == "" {
			payload := map[string]any{"amount": t.b.PriceCents, "currency": t.b.Currency}
			if err := t.issueVenueCode(payload); err != nil {
				return err
			}
			t.emit(model.EventPaymentRequired, model.PartyRequester, payload)
		}
		return nil
	})
}

// PayByCard charges the booking price through the gateway. A declined
// charge is not an error: the booking records the failed payment and the
// requester may try again. A successful payment confirms a pending booking.
func (e *Engine) PayByCard(ctx context.Context, bookingID, actorID, token string) (*model.Booking, error) {
	const op = "pay by card"
	if strings.TrimSpace(token) == "" {
		return nil, newError(KindInvalidInput, op, "a payment token is required")
	}
	return e.mutate(ctx, op, bookingID, actorID, func(t *txn) error {
		if err := t.requireParty(model.PartyRequester, "only the requester can pay for this booking"); err != nil {
			return err
		}
		if err := t.checkDeadline(); err != nil {
			return err
		}
		if err := t.payable(model.PaymentCard); err != nil {
			return err
		}

		b := t.b
		res := payment.ChargeResult{Succeeded: true, Reference: "free"}
		if b.PriceCents > 0 {
			key := b.PaymentAttempt
			if key == "" {
				key = b.ID + ":" + uuid.NewString()
			}
			var err error
			res, err = t.e.gateway.Charge(t.ctx, payment.ChargeRequest{
				BookingID:      b.ID,
				AmountCents:    b.PriceCents,
				Currency:       b.Currency,
				Token:          token,
				IdempotencyKey: key,
			})
			if err != nil {
				// The charge may have gone through; the next attempt reuses
				// the key so the gateway can deduplicate it.
				log.Printf("booking: card charge for %s has no outcome: %v", b.ID, err)
				b.PaymentStatus = model.PaymentProcessing
				b.PaymentAttempt = key
				t.touch()
				return nil
			}
		}
		b.PaymentAttempt = ""
		t.touch()
		if !res.Succeeded {
			b.PaymentStatus = model.PaymentFailed
			t.emit(model.EventPaymentFailed, model.PartyRequester, map[string]any{"message": res.Message})
			return nil
		}
		b.PaymentStatus = model.PaymentCompleted
		b.PaymentRef = res.Reference
		t.emitBoth(model.EventPaymentCompleted, map[string]any{"method": string(model.PaymentCard), "amount": b.PriceCents, "currency": b.Currency})
		if b.Status == model.StatusPending {
			return t.transition(TriggerAccept, "paid by card")
		}
		return nil
	})
}

// ConfirmVenuePayment records a payment taken at the venue. The provider
// enters the code the requester presents; a valid code marks the booking
// paid and confirms it if it was still pending.
func (e *Engine) ConfirmVenuePayment(ctx context.Context, bookingID, actorID, code string) (*model.Booking, error) {
	const op = "confirm venue payment"
	return e.mutate(ctx, op, bookingID, actorID, func(t *txn) error {
		if err := t.requireParty(model.PartyProvider, "only the provider can confirm a venue payment"); err != nil {
			return err
		}
		if err := t.checkDeadline(); err != nil {
			return err
		}
		if err := t.payable(model.PaymentPayAtVenue); err != nil {
			return err
		}
		if !utils.VerifyVenueCode(t.b.VenueCodeHash, strings.ToUpper(strings.TrimSpace(code))) {
			return newError(KindInvalidInput, op, "invalid payment code")
		}
		t.b.PaymentStatus = model.PaymentCompleted
		t.b.PaymentRef = "venue:" + t.actor
		t.touch()
		t.emit(model.EventPaymentCompleted, model.PartyRequester, map[string]any{"method": string(model.PaymentPayAtVenue), "amount": t.b.PriceCents, "currency": t.b.Currency})
		if t.b.Status == model.StatusPending {
			return t.transition(TriggerAccept, "paid at venue")
		}
		return nil
	})
}

func (t *txn) payable(method model.PaymentMethod) error {
	b := t.b
	if b.PaymentMethod != method {
		return newError(KindInvalidState, t.op, "the booking is set up for %s payment", b.PaymentMethod)
	}
	if b.PaymentStatus == model.PaymentCompleted {
		return newError(KindInvalidState, t.op, "the booking is already paid")
	}
	switch b.Status {
	case model.StatusPending, model.StatusConfirmed, model.StatusModified:
		return nil
	case model.StatusCounterProposed:
		return newError(KindInvalidState, t.op, "resolve the pending proposal before paying")
	}
	return newError(KindInvalidState, t.op, "a %s booking cannot be paid", b.Status)
}
