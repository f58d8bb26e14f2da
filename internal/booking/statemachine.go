package booking

import (
	"sort"

	"github.com/iliyamo/fitbook/internal/model"
)

// Trigger names the event that drives a status change.
type Trigger string

const (
	TriggerSubmit   Trigger = "submit"
	TriggerAccept   Trigger = "accept"
	TriggerDecline  Trigger = "decline"
	TriggerPropose  Trigger = "propose"
	TriggerCounter  Trigger = "counter"
	TriggerRevert   Trigger = "revert"
	TriggerExpire   Trigger = "expire"
	TriggerComplete Trigger = "complete"
	TriggerNoShow   Trigger = "no_show"
	TriggerCancel   Trigger = "cancel"
)

// transitions is the complete status graph. Anything not listed here is
// an invalid transition; terminal statuses have no outgoing edges.
var transitions = map[Trigger]map[model.Status]model.Status{
	TriggerSubmit: {
		model.StatusDraft: model.StatusPending,
	},
	TriggerAccept: {
		model.StatusPending:         model.StatusConfirmed,
		model.StatusCounterProposed: model.StatusConfirmed,
		model.StatusModified:        model.StatusConfirmed,
	},
	TriggerDecline: {
		model.StatusPending:         model.StatusRejected,
		model.StatusCounterProposed: model.StatusRejected,
	},
	TriggerPropose: {
		model.StatusPending:   model.StatusCounterProposed,
		model.StatusConfirmed: model.StatusModified,
	},
	TriggerCounter: {
		model.StatusCounterProposed: model.StatusCounterProposed,
		model.StatusModified:        model.StatusModified,
	},
	TriggerRevert: {
		model.StatusCounterProposed: model.StatusPending,
		model.StatusModified:        model.StatusConfirmed,
	},
	TriggerExpire: {
		model.StatusPending:         model.StatusExpired,
		model.StatusCounterProposed: model.StatusExpired,
	},
	TriggerComplete: {
		model.StatusConfirmed: model.StatusCompleted,
	},
	TriggerNoShow: {
		model.StatusConfirmed: model.StatusNoShow,
	},
	TriggerCancel: {
		model.StatusPending:   model.StatusCancelled,
		model.StatusConfirmed: model.StatusCancelled,
	},
}

// Next returns the status reached from `from` by trigger t.
func Next(from model.Status, t Trigger) (model.Status, bool) {
	to, ok := transitions[t][from]
	return to, ok
}

// Allowed reports whether t moves a booking from `from` to `to`.
func Allowed(t Trigger, from, to model.Status) bool {
	next, ok := Next(from, t)
	return ok && next == to
}

// Triggers lists every trigger in the table, sorted by name.
func Triggers() []Trigger {
	out := make([]Trigger, 0, len(transitions))
	for t := range transitions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
