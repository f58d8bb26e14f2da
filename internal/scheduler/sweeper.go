// Package scheduler runs the periodic deadline sweep that expires unpaid
// pay-at-venue bookings, fires payment reminders and lapses unanswered
// proposals.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/fitbook/internal/booking"
	"github.com/iliyamo/fitbook/internal/repository"
)

// Engine is the part of the booking engine the sweep drives.
type Engine interface {
	ProcessDeadline(ctx context.Context, bookingID string) (booking.DeadlineOutcome, error)
	ExpireProposal(ctx context.Context, proposalID string) (bool, error)
}

// Stats summarises one sweep.
type Stats struct {
	Checked  int
	Expired  int
	Reminded int
	Skipped  int
	Lapsed   int
	Failed   int
}

func (s Stats) String() string {
	return fmt.Sprintf("checked=%d expired=%d reminded=%d skipped=%d lapsed=%d failed=%d",
		s.Checked, s.Expired, s.Reminded, s.Skipped, s.Lapsed, s.Failed)
}

// Sweeper evaluates every waiting booking and every lapsed proposal on a
// fixed interval.
type Sweeper struct {
	engine   Engine
	store    repository.Store
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration

	sched gocron.Scheduler
}

// New returns a sweeper running every interval. The clock drives both the
// job timer and the lapse cut-off.
func New(engine Engine, store repository.Store, clock clockwork.Clock, interval time.Duration) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		engine:   engine,
		store:    store,
		clock:    clock,
		interval: interval,
		timeout:  interval * 5,
	}
}

// Start registers the sweep job and starts the scheduler. A run that is
// still in progress when the next one is due delays it rather than
// overlapping it.
func (s *Sweeper) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.clock), gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("scheduler: create: %w", err)
	}
	j, err := sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.run),
		gocron.WithName("booking-deadline-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("scheduler: register sweep: %w", err)
	}
	s.sched = sched
	sched.Start()
	log.Printf("scheduler: sweep job %s every %s", j.ID(), s.interval)
	return nil
}

// Stop waits for a running sweep to finish and stops the scheduler.
func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.sched = nil
	return err
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	st, err := s.Sweep(ctx)
	if err != nil {
		log.Printf("scheduler: sweep aborted: %v (%s)", err, st)
		return
	}
	if st.Expired+st.Reminded+st.Lapsed+st.Failed > 0 {
		log.Printf("scheduler: sweep %s", st)
	}
}

// Sweep runs one pass. Failures on single bookings are logged and counted;
// the returned error is set only when a listing query fails.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, error) {
	var st Stats
	waiting, err := s.store.ListAwaitingDeadline(ctx)
	if err != nil {
		return st, fmt.Errorf("list waiting bookings: %w", err)
	}
	for _, b := range waiting {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Checked++
		out, err := s.engine.ProcessDeadline(ctx, b.ID)
		if err != nil {
			st.Failed++
			log.Printf("scheduler: booking %s: %v", b.ID, err)
			continue
		}
		if out.Expired {
			st.Expired++
		}
		if out.Reminded {
			st.Reminded++
		}
		st.Skipped += out.Skipped
	}

	lapsed, err := s.store.ListLapsedProposals(ctx, s.clock.Now().UTC())
	if err != nil {
		return st, fmt.Errorf("list lapsed proposals: %w", err)
	}
	for _, p := range lapsed {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		changed, err := s.engine.ExpireProposal(ctx, p.ID)
		if err != nil {
			st.Failed++
			log.Printf("scheduler: proposal %s: %v", p.ID, err)
			continue
		}
		if changed {
			st.Lapsed++
		}
	}
	return st, nil
}
