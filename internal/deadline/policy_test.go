package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitbook/internal/model"
)

var opened = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func offsets(plan []Instant) []time.Duration {
	out := make([]time.Duration, len(plan))
	for i, in := range plan {
		out[i] = in.At.Sub(opened)
	}
	return out
}

func TestGraceTable(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 24*time.Hour, p.GraceFor(model.KindClass))
	assert.Equal(t, 72*time.Hour, p.GraceFor(model.KindProgram))
	assert.Equal(t, 48*time.Hour, p.GraceFor(model.KindPrivate))
	assert.Equal(t, 48*time.Hour, p.GraceFor("product"))
	assert.Equal(t, 24*time.Hour, p.GraceFor("subscription"))
	assert.Equal(t, opened.Add(24*time.Hour), p.DueDate(model.KindClass, opened))
}

func TestPlanClassWindow(t *testing.T) {
	p := DefaultPolicy()
	plan := p.Reminders.Plan(opened, p.DueDate(model.KindClass, opened))
	require.Len(t, plan, 2)
	assert.Equal(t, []time.Duration{6 * time.Hour, 18 * time.Hour}, offsets(plan))
	assert.False(t, plan[0].Final)
	assert.True(t, plan[1].Final)
}

func TestPlanProgramWindow(t *testing.T) {
	p := DefaultPolicy()
	plan := p.Reminders.Plan(opened, p.DueDate(model.KindProgram, opened))
	want := []time.Duration{}
	for h := 6; h <= 54; h += 6 {
		want = append(want, time.Duration(h)*time.Hour)
	}
	want = append(want, 66*time.Hour)
	assert.Equal(t, want, offsets(plan))
	assert.True(t, plan[len(plan)-1].Final)
	for _, in := range plan[:len(plan)-1] {
		assert.False(t, in.Final)
	}
}

func TestPlanIsSortedUniqueAndInsideWindow(t *testing.T) {
	policies := []ReminderPolicy{
		{Interval: 6 * time.Hour, FinalLead: 6 * time.Hour, FinalQuiet: 6 * time.Hour},
		{Interval: 5 * time.Hour, FinalLead: 2 * time.Hour, FinalQuiet: time.Hour},
		{Interval: time.Hour, FinalLead: 90 * time.Minute, FinalQuiet: 0},
		{Interval: 0, FinalLead: 3 * time.Hour},
		{Interval: 4 * time.Hour, FinalLead: 0},
	}
	for _, rp := range policies {
		for _, grace := range []time.Duration{time.Hour, 24 * time.Hour, 48 * time.Hour, 72 * time.Hour} {
			due := opened.Add(grace)
			plan := rp.Plan(opened, due)
			finals := 0
			for i, in := range plan {
				assert.True(t, in.At.After(opened), "reminder at or before opening")
				assert.True(t, in.At.Before(due), "reminder at or after deadline")
				if i > 0 {
					assert.True(t, plan[i-1].At.Before(in.At), "plan not strictly ascending")
				}
				if in.Final {
					finals++
				}
			}
			assert.LessOrEqual(t, finals, 1)
		}
	}
}

func TestPlanShortWindowHasNoPastFinal(t *testing.T) {
	rp := ReminderPolicy{Interval: 6 * time.Hour, FinalLead: 6 * time.Hour, FinalQuiet: 6 * time.Hour}
	plan := rp.Plan(opened, opened.Add(4*time.Hour))
	assert.Empty(t, plan)
}

func TestScheduleRecords(t *testing.T) {
	p := DefaultPolicy()
	rs := p.Schedule("b1", opened, p.DueDate(model.KindClass, opened))
	require.Len(t, rs, 2)
	for i, r := range rs {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, "b1", r.BookingID)
		assert.Equal(t, i+1, r.Seq)
		assert.Equal(t, model.ReminderScheduled, r.Status)
	}
	assert.NotEqual(t, rs[0].ID, rs[1].ID)
}

func TestSelect(t *testing.T) {
	p := DefaultPolicy()
	rs := p.Schedule("b1", opened, p.DueDate(model.KindClass, opened))
	checkpoint := opened

	sel := Select(rs, &checkpoint, opened.Add(5*time.Hour))
	assert.Equal(t, -1, sel.Fire)
	assert.Empty(t, sel.Skip)

	sel = Select(rs, &checkpoint, opened.Add(6*time.Hour))
	assert.Equal(t, 0, sel.Fire)

	// After downtime both instants are due; only the latest fires.
	sel = Select(rs, &checkpoint, opened.Add(20*time.Hour))
	assert.Equal(t, 1, sel.Fire)
	assert.Equal(t, []int{0}, sel.Skip)

	// Already-consumed reminders and instants at the checkpoint never fire again.
	rs[0].Status = model.ReminderFired
	cp := opened.Add(6 * time.Hour)
	sel = Select(rs, &cp, opened.Add(7*time.Hour))
	assert.Equal(t, -1, sel.Fire)

	rs[1].Status = model.ReminderCancelled
	sel = Select(rs, nil, opened.Add(23*time.Hour))
	assert.Equal(t, -1, sel.Fire)
}

func TestDescribe(t *testing.T) {
	v := DefaultPolicy().Describe()
	assert.Equal(t, 24.0, v.GraceHours["class"])
	assert.Equal(t, 48.0, v.DefaultGraceHours)
	assert.Equal(t, 6.0, v.ReminderHours.FinalLead)
}
