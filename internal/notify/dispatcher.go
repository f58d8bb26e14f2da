// Package notify delivers booking events to people and downstream systems.
// The engine hands every committed change to a Dispatcher; delivery
// failures are reported back but never undo the change.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/iliyamo/fitbook/internal/model"
)

// Dispatcher delivers one event.
type Dispatcher interface {
	Notify(ctx context.Context, ev model.Event) error
}

// Func adapts a plain function to Dispatcher.
type Func func(ctx context.Context, ev model.Event) error

func (f Func) Notify(ctx context.Context, ev model.Event) error { return f(ctx, ev) }

// Multi sends every event to each dispatcher in turn and joins the errors.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, d := range m {
		if err := d.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to the standard logger. It is the default dispatcher
// when no broker is configured.
type Log struct{}

func (Log) Notify(_ context.Context, ev model.Event) error {
	log.Printf("notify: %s booking=%s recipient=%s", ev.Type, ev.BookingID, ev.RecipientID)
	return nil
}

// Recorder keeps every event in memory. Tests use it to assert on what
// the engine emitted.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
	Err    error
}

func (r *Recorder) Notify(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
