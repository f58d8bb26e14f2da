package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/fitbook/internal/model"
)

func TestTerminalStatusesAreAbsorbing(t *testing.T) {
	for _, s := range model.AllStatuses {
		if !s.Terminal() {
			continue
		}
		for _, trig := range Triggers() {
			_, ok := Next(s, trig)
			assert.False(t, ok, "%s has an outgoing %s edge", s, trig)
		}
	}
}

func TestTableTargetsAreKnownStatuses(t *testing.T) {
	for trig, edges := range transitions {
		for from, to := range edges {
			assert.True(t, from.Valid(), "%s: unknown source %s", trig, from)
			assert.True(t, to.Valid(), "%s: unknown target %s", trig, to)
			assert.True(t, Allowed(trig, from, to))
		}
	}
}

func TestEveryStatusReachableFromDraft(t *testing.T) {
	seen := map[model.Status]bool{model.StatusDraft: true}
	queue := []model.Status{model.StatusDraft}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, trig := range Triggers() {
			if next, ok := Next(cur, trig); ok && !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, s := range model.AllStatuses {
		assert.True(t, seen[s], "%s is unreachable", s)
	}
}

func TestNonTerminalStatusesCanLeave(t *testing.T) {
	for _, s := range model.AllStatuses {
		if s.Terminal() {
			continue
		}
		out := 0
		for _, trig := range Triggers() {
			if next, ok := Next(s, trig); ok && next != s {
				out++
			}
		}
		assert.Positive(t, out, "%s is a dead end", s)
	}
}

func TestSpecificEdges(t *testing.T) {
	cases := []struct {
		trig     Trigger
		from, to model.Status
		ok       bool
	}{
		{TriggerPropose, model.StatusPending, model.StatusCounterProposed, true},
		{TriggerPropose, model.StatusConfirmed, model.StatusModified, true},
		{TriggerRevert, model.StatusModified, model.StatusConfirmed, true},
		{TriggerRevert, model.StatusCounterProposed, model.StatusPending, true},
		{TriggerAccept, model.StatusModified, model.StatusConfirmed, true},
		{TriggerDecline, model.StatusModified, model.StatusRejected, false},
		{TriggerExpire, model.StatusConfirmed, model.StatusExpired, false},
		{TriggerCancel, model.StatusCounterProposed, model.StatusCancelled, false},
		{TriggerComplete, model.StatusModified, model.StatusCompleted, false},
		{TriggerSubmit, model.StatusPending, model.StatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, Allowed(c.trig, c.from, c.to), "%s %s->%s", c.trig, c.from, c.to)
	}
}

func TestErrorKinds(t *testing.T) {
	err := newError(KindStaleProposal, "respond", "gone")
	assert.ErrorIs(t, err, ErrStaleProposal)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.True(t, NeedsRefresh(err))
	assert.Equal(t, "respond: gone", err.Error())

	assert.True(t, NeedsRefresh(ErrDeadlineAlreadyPassed))
	assert.True(t, NeedsRefresh(ErrConflict))
	assert.False(t, NeedsRefresh(ErrInvalidTransition))
	assert.Equal(t, ErrorKind(""), KindOf(assert.AnError))
}
