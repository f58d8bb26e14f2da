package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/fitbook/internal/model"
)

// ErrQueueFull is returned by Async.Notify when the buffer is exhausted.
var ErrQueueFull = errors.New("notify: queue full")

// ErrClosed is returned by Async.Notify after Close.
var ErrClosed = errors.New("notify: dispatcher closed")

// AsyncOptions tunes the background delivery.
//
//	Workers  – goroutines draining the queue (default 2).
//	Buffer   – queued events before Notify starts refusing (default 256).
//	Attempts – delivery attempts per event, first try included (default 5).
//	Backoff  – wait before the second attempt, doubled after each failure.
type AsyncOptions struct {
	Workers  int
	Buffer   int
	Attempts int
	Backoff  time.Duration
}

// Async queues events and delivers them to the wrapped dispatcher from
// background workers, retrying failures with exponential backoff. Notify
// never blocks on the downstream system.
type Async struct {
	next  Dispatcher
	opts  AsyncOptions
	queue chan model.Event
	wg    sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewAsync starts the workers. Call Close to drain and stop them.
func NewAsync(next Dispatcher, opts AsyncOptions) *Async {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	a := &Async{
		next:  next,
		opts:  opts,
		queue: make(chan model.Event, opts.Buffer),
		stop:  make(chan struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		a.wg.Add(1)
		go a.work()
	}
	return a
}

func (a *Async) Notify(_ context.Context, ev model.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end, whichever comes first. Retries still pending when ctx
// ends are abandoned.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.stopOnce.Do(func() { close(a.stop) })
		<-done
		return ctx.Err()
	}
}

func (a *Async) work() {
	defer a.wg.Done()
	for ev := range a.queue {
		a.deliver(ev)
	}
}

func (a *Async) deliver(ev model.Event) {
	wait := a.opts.Backoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := a.next.Notify(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		if attempt >= a.opts.Attempts {
			log.Printf("notify: giving up on %s for booking %s after %d attempts: %v", ev.Type, ev.BookingID, attempt, err)
			return
		}
		log.Printf("notify: %s for booking %s failed (attempt %d): %v; retrying in %s", ev.Type, ev.BookingID, attempt, err, wait)
		select {
		case <-time.After(wait):
		case <-a.stop:
			return
		}
		wait *= 2
	}
}
