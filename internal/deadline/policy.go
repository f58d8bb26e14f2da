// Package deadline computes payment deadlines and reminder schedules for
// bookings that wait for pay-at-venue resolution. It is pure: callers pass
// the instants in and persist what comes out.
package deadline

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/fitbook/internal/model"
)

// ReminderPolicy shapes the reminder schedule inside a grace window.
//
//	Interval   – spacing of regular reminders, counted back from the deadline.
//	FinalLead  – how long before the deadline the final reminder fires.
//	FinalQuiet – span before the final reminder in which regular reminders
//	             are folded into the final one.
type ReminderPolicy struct {
	Interval   time.Duration `json:"interval"`
	FinalLead  time.Duration `json:"final_lead"`
	FinalQuiet time.Duration `json:"final_quiet"`
}

// Policy is the grace-window table plus the reminder policy.
type Policy struct {
	Grace        map[string]time.Duration
	DefaultGrace time.Duration
	Reminders    ReminderPolicy
}

// DefaultPolicy returns the stock grace table: class 24h, program 72h,
// product 48h, subscription 24h and 48h for anything else.
func DefaultPolicy() Policy {
	return Policy{
		Grace: map[string]time.Duration{
			"class":        24 * time.Hour,
			"program":      72 * time.Hour,
			"product":      48 * time.Hour,
			"subscription": 24 * time.Hour,
		},
		DefaultGrace: 48 * time.Hour,
		Reminders: ReminderPolicy{
			Interval:   6 * time.Hour,
			FinalLead:  6 * time.Hour,
			FinalQuiet: 6 * time.Hour,
		},
	}
}

// GraceFor returns the grace window for kind.
func (p Policy) GraceFor(kind model.Kind) time.Duration {
	if d, ok := p.Grace[string(kind)]; ok && d > 0 {
		return d
	}
	return p.DefaultGrace
}

// DueDate returns the payment deadline of a wait opened at openedAt.
func (p Policy) DueDate(kind model.Kind, openedAt time.Time) time.Time {
	return openedAt.Add(p.GraceFor(kind))
}

// Instant is one entry of a reminder plan.
type Instant struct {
	At    time.Time
	Final bool
}

// Plan lists the reminder instants for a wait running from openedAt to
// due, ascending and without duplicates. Instants at or before openedAt
// are dropped.
func (rp ReminderPolicy) Plan(openedAt, due time.Time) []Instant {
	final := due.Add(-rp.FinalLead)
	quietFrom := final.Add(-rp.FinalQuiet)
	hasFinal := rp.FinalLead > 0 && final.After(openedAt)

	seen := map[int64]bool{}
	var out []Instant
	add := func(at time.Time, isFinal bool) {
		k := at.UnixNano()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, Instant{At: at, Final: isFinal})
	}

	if hasFinal {
		add(final, true)
	}
	if rp.Interval > 0 {
		for at := due.Add(-rp.Interval); at.After(openedAt); at = at.Add(-rp.Interval) {
			if hasFinal {
				if at.Equal(final) {
					continue
				}
				if !at.Before(quietFrom) {
					continue
				}
			}
			add(at, false)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Schedule materialises the reminder plan of a booking into records.
func (p Policy) Schedule(bookingID string, openedAt, due time.Time) []model.Reminder {
	plan := p.Reminders.Plan(openedAt, due)
	out := make([]model.Reminder, 0, len(plan))
	for i, in := range plan {
		out = append(out, model.Reminder{
			ID:        uuid.NewString(),
			BookingID: bookingID,
			Seq:       i + 1,
			FireAt:    in.At,
			Final:     in.Final,
			Status:    model.ReminderScheduled,
		})
	}
	return out
}

// Selection is the outcome of evaluating a schedule at one instant.
// Fire indexes the reminder to deliver (-1 for none); Skip indexes
// reminders that became due in the same evaluation but were overtaken by
// a later one.
type Selection struct {
	Fire int
	Skip []int
}

// Select picks, among scheduled reminders with FireAt in (checkpoint, now],
// the latest one to fire and marks the earlier ones as skipped. A nil
// checkpoint means the schedule has never been evaluated.
func Select(rs []model.Reminder, checkpoint *time.Time, now time.Time) Selection {
	sel := Selection{Fire: -1}
	for i, r := range rs {
		if r.Status != model.ReminderScheduled {
			continue
		}
		if r.FireAt.After(now) {
			continue
		}
		if checkpoint != nil && !r.FireAt.After(*checkpoint) {
			continue
		}
		if sel.Fire == -1 {
			sel.Fire = i
			continue
		}
		if r.FireAt.After(rs[sel.Fire].FireAt) {
			sel.Skip = append(sel.Skip, sel.Fire)
			sel.Fire = i
		} else {
			sel.Skip = append(sel.Skip, i)
		}
	}
	sort.Ints(sel.Skip)
	return sel
}

// View is the JSON shape of a policy published to clients.
type View struct {
	GraceHours        map[string]float64 `json:"grace_hours"`
	DefaultGraceHours float64            `json:"default_grace_hours"`
	ReminderHours     struct {
		Interval   float64 `json:"interval"`
		FinalLead  float64 `json:"final_lead"`
		FinalQuiet float64 `json:"final_quiet"`
	} `json:"reminder_hours"`
}

// Describe renders p for the policy endpoint.
func (p Policy) Describe() View {
	var v View
	v.GraceHours = make(map[string]float64, len(p.Grace))
	for k, d := range p.Grace {
		v.GraceHours[k] = d.Hours()
	}
	v.DefaultGraceHours = p.DefaultGrace.Hours()
	v.ReminderHours.Interval = p.Reminders.Interval.Hours()
	v.ReminderHours.FinalLead = p.Reminders.FinalLead.Hours()
	v.ReminderHours.FinalQuiet = p.Reminders.FinalQuiet.Hours()
	return v
}
