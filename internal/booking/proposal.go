package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/fitbook/internal/model"
)

// Action is a response to a proposal.
type Action string

const (
	ActionAccept       Action = "accept"
	ActionReject       Action = "reject"
	ActionCounter      Action = "counter"
	ActionKeepOriginal Action = "keep_original"
)

// Valid reports whether a is a known response.
func (a Action) Valid() bool {
	switch a {
	case ActionAccept, ActionReject, ActionCounter, ActionKeepOriginal:
		return true
	}
	return false
}

// ProposeRequest asks to change the terms of a booking.
type ProposeRequest struct {
	Changes model.Changes
	Message string
}

// RespondRequest answers the open proposal. Changes and KeepOriginal are
// only read for ActionCounter; a keep-original counter asks to go back to
// the terms in force before the negotiation.
type RespondRequest struct {
	Action       Action
	Message      string
	Changes      model.Changes
	KeepOriginal bool
}

// Propose opens a negotiation on a pending or confirmed booking. The
// booking moves to counter_proposed (pending) or modified (confirmed) and
// waits for the other party. A lapsed proposal still attached to the
// booking is expired first.
func (e *Engine) Propose(ctx context.Context, bookingID, actorID string, req ProposeRequest) (*model.Proposal, error) {
	const op = "propose"
	var out *model.Proposal
	_, err := e.mutate(ctx, op, bookingID, actorID, func(t *txn) error {
		party, err := t.party()
		if err != nil {
			return err
		}
		if err := t.checkDeadline(); err != nil {
			return err
		}
		if t.b.Status.Terminal() || t.b.Status == model.StatusDraft {
			return newError(KindInvalidState, op, "changes can only be proposed on pending or confirmed bookings")
		}
		if id := t.b.ActiveProposalID; id != "" {
			open, err := t.proposal(id)
			if err != nil {
				return err
			}
			if !t.lapsed(open) {
				if open.ProposedBy == party {
					return newError(KindInvalidState, op, "your previous proposal is still waiting for a response")
				}
				return newError(KindInvalidState, op, "respond to the pending proposal before proposing new changes")
			}
			if err := t.lapse(open); err != nil {
				return err
			}
		}

		p, err := t.newProposal(party, req.Changes, false, req.Message)
		if err != nil {
			return err
		}
		t.b.PreProposalStatus = t.b.Status
		t.b.ActiveProposalID = p.ID
		if err := t.transition(TriggerPropose, ""); err != nil {
			return err
		}
		t.emit(model.EventBookingProposed, party.Counter(), proposalPayload(p))
		out = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RespondToProposal applies the other party's answer to an open proposal.
func (e *Engine) RespondToProposal(ctx context.Context, proposalID, actorID string, req RespondRequest) (*model.Booking, error) {
	const op = "respond to proposal"
	if !req.Action.Valid() {
		return nil, newError(KindInvalidInput, op, "unknown action %q", req.Action)
	}
	p0, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, e.storeError(op, err)
	}
	return e.mutate(ctx, op, p0.BookingID, actorID, func(t *txn) error {
		party, err := t.party()
		if err != nil {
			return err
		}
		if err := t.checkDeadline(); err != nil {
			return err
		}
		p, err := t.proposal(proposalID)
		if err != nil {
			return err
		}
		if p.Status != model.ProposalPending || t.b.ActiveProposalID != p.ID {
			return newError(KindStaleProposal, op, "this proposal is no longer open")
		}
		if t.lapsed(p) {
			if err := t.lapse(p); err != nil {
				return err
			}
			t.commitAnyway = true
			return newError(KindStaleProposal, op, "this proposal has expired")
		}
		if party == p.ProposedBy {
			return newError(KindUnauthorizedActor, op, "only the other party can respond to this proposal")
		}

		switch req.Action {
		case ActionAccept:
			return t.acceptProposal(p, req.Message)
		case ActionReject:
			return t.rejectProposal(p, req.Message)
		case ActionCounter:
			return t.counterProposal(p, party, req)
		default:
			return t.keepOriginal(p, req.Message)
		}
	})
}

// newProposal validates and records a proposal authored by party. It
// counts towards the negotiation cap.
func (t *txn) newProposal(party model.Party, changes model.Changes, keepOriginal bool, message string) (*model.Proposal, error) {
	if keepOriginal {
		changes = model.Changes{}
	} else {
		if changes.Empty() {
			return nil, newError(KindInvalidInput, t.op, "a proposal must change at least one term")
		}
		merged := changes.Apply(t.b.Terms)
		if err := validateTerms(merged); err != nil {
			return nil, &Error{Kind: KindInvalidInput, Op: t.op, Msg: err.Error()}
		}
		if merged == t.b.Terms {
			return nil, newError(KindInvalidInput, t.op, "the proposal does not change anything")
		}
	}
	if limit := t.e.cfg.MaxRounds; limit > 0 && t.b.NegotiationRounds >= limit {
		return nil, newError(KindNegotiationLimitExceeded, t.op, "this booking reached the limit of %d proposals", limit)
	}

	t.b.NegotiationRounds++
	p := &model.Proposal{
		ID:           uuid.NewString(),
		BookingID:    t.b.ID,
		ProposedBy:   party,
		ActorID:      t.actor,
		Changes:      changes,
		KeepOriginal: keepOriginal,
		Message:      message,
		Status:       model.ProposalPending,
		Round:        t.b.NegotiationRounds,
		CreatedAt:    t.now,
		ExpiresAt:    t.now.Add(t.e.cfg.ProposalTTL),
	}
	t.track(p)
	t.touch()
	return p, nil
}

// resolve closes p with the given outcome and detaches it from the booking.
func (t *txn) resolve(p *model.Proposal, status model.ProposalStatus, message string) {
	p.Status = status
	p.RespondedBy = t.actor
	p.RespondedAt = model.TimePtr(t.now)
	p.ResponseMessage = message
	t.track(p)
	if t.b.ActiveProposalID == p.ID {
		t.b.ActiveProposalID = ""
	}
}

// acceptProposal merges the proposed terms all at once and confirms the
// booking. Accepting a keep-original proposal restores the pre-proposal
// status without touching the terms.
func (t *txn) acceptProposal(p *model.Proposal, message string) error {
	if p.KeepOriginal {
		t.resolve(p, model.ProposalAccepted, message)
		if err := t.revertAs(t.actor, "original terms kept"); err != nil {
			return err
		}
		t.emit(model.EventBookingReverted, p.ProposedBy, map[string]any{"proposal_id": p.ID})
		return nil
	}

	merged := p.Changes.Apply(t.b.Terms)
	if err := validateTerms(merged); err != nil {
		return &Error{Kind: KindInvalidInput, Op: t.op, Msg: err.Error()}
	}
	t.resolve(p, model.ProposalAccepted, message)
	t.b.Terms = merged
	if err := t.transition(TriggerAccept, ""); err != nil {
		return err
	}
	t.emit(model.EventBookingAccepted, p.ProposedBy, proposalPayload(p))
	return nil
}

// rejectProposal declines p. A negotiation on a pending booking ends the
// booking; a change request on a confirmed booking leaves it confirmed
// with its previous terms.
func (t *txn) rejectProposal(p *model.Proposal, message string) error {
	t.resolve(p, model.ProposalRejected, message)
	if t.b.Status == model.StatusModified {
		if err := t.revertAs(t.actor, "proposal rejected"); err != nil {
			return err
		}
		t.emit(model.EventBookingReverted, p.ProposedBy, map[string]any{"proposal_id": p.ID, "message": message})
		return nil
	}
	if err := t.transition(TriggerDecline, message); err != nil {
		return err
	}
	t.emit(model.EventBookingRejected, p.ProposedBy, map[string]any{"proposal_id": p.ID, "reason": message})
	return nil
}

func (t *txn) counterProposal(p *model.Proposal, party model.Party, req RespondRequest) error {
	q, err := t.newProposal(party, req.Changes, req.KeepOriginal, req.Message)
	if err != nil {
		return err
	}
	p.Status = model.ProposalSuperseded
	p.SupersededBy = q.ID
	p.RespondedBy = t.actor
	p.RespondedAt = model.TimePtr(t.now)
	p.ResponseMessage = req.Message
	t.track(p)
	t.b.ActiveProposalID = q.ID
	if err := t.transition(TriggerCounter, ""); err != nil {
		return err
	}
	t.emit(model.EventBookingCountered, p.ProposedBy, proposalPayload(q))
	return nil
}

func (t *txn) keepOriginal(p *model.Proposal, message string) error {
	t.resolve(p, model.ProposalRejected, message)
	if err := t.revertAs(t.actor, "original terms kept"); err != nil {
		return err
	}
	t.emitBoth(model.EventBookingReverted, map[string]any{"proposal_id": p.ID})
	return nil
}

func proposalPayload(p *model.Proposal) map[string]any {
	return map[string]any{
		"proposal_id":   p.ID,
		"proposed_by":   string(p.ProposedBy),
		"round":         p.Round,
		"changes":       p.Changes,
		"keep_original": p.KeepOriginal,
		"message":       p.Message,
		"expires_at":    p.ExpiresAt.Format(time.RFC3339),
	}
}
