package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/fitbook/internal/model"
)

// MemoryStore keeps bookings and their children in process memory. It is
// used by single-process deployments and by tests. All returned records
// are copies; mutating them never changes the stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	bookings  map[string]*model.Booking
	proposals map[string]*model.Proposal
	reminders map[string]*model.Reminder
	history   map[string][]model.StatusChange

	// failSave, when set, is returned by Save without writing anything.
	failSave error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:  map[string]*model.Booking{},
		proposals: map[string]*model.Proposal{},
		reminders: map[string]*model.Reminder{},
		history:   map[string][]model.StatusChange{},
	}
}

// FailSaves makes every subsequent Save return err until called with nil.
// It simulates an unavailable backend.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	s.failSave = err
	s.mu.Unlock()
}

func (s *MemoryStore) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status model.Status) ([]model.Booking, error) {
	return s.filterBookings(func(b *model.Booking) bool { return b.Status == status }, byCreated), nil
}

func (s *MemoryStore) ListByParty(_ context.Context, partyID string) ([]model.Booking, error) {
	return s.filterBookings(func(b *model.Booking) bool {
		return b.RequesterID == partyID || b.ProviderID == partyID
	}, byCreated), nil
}

func (s *MemoryStore) ListAwaitingDeadline(_ context.Context) ([]model.Booking, error) {
	return s.filterBookings(func(b *model.Booking) bool { return b.PaymentDueDate != nil }, func(a, b model.Booking) bool {
		if a.PaymentDueDate.Equal(*b.PaymentDueDate) {
			return a.ID < b.ID
		}
		return a.PaymentDueDate.Before(*b.PaymentDueDate)
	}), nil
}

func byCreated(a, b model.Booking) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *MemoryStore) filterBookings(keep func(*model.Booking) bool, less func(a, b model.Booking) bool) []model.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Booking, 0)
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (s *MemoryStore) GetProposal(_ context.Context, id string) (*model.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProposals(_ context.Context, bookingID string) ([]model.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Proposal, 0)
	for _, p := range s.proposals {
		if p.BookingID == bookingID {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListLapsedProposals(_ context.Context, now time.Time) ([]model.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Proposal, 0)
	for _, p := range s.proposals {
		if p.Status == model.ProposalPending && !p.ExpiresAt.After(now) {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *MemoryStore) ListReminders(_ context.Context, bookingID string) ([]model.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reminder, 0)
	for _, r := range s.reminders {
		if r.BookingID == bookingID {
			c := *r
			if r.FiredAt != nil {
				c.FiredAt = model.TimePtr(*r.FiredAt)
			}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out, nil
}

func (s *MemoryStore) ListHistory(_ context.Context, bookingID string) ([]model.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[bookingID]
	out := make([]model.StatusChange, len(h))
	copy(out, h)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, cs *ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	if b := cs.Booking; b != nil {
		cur, ok := s.bookings[b.ID]
		switch {
		case !ok && b.Version != 0:
			return ErrNotFound
		case ok && cur.Version != b.Version:
			return ErrConflict
		}
		b.Version++
		stored := b.Clone()
		stored.VenueCode = ""
		s.bookings[b.ID] = stored
	}
	for i := range cs.Proposals {
		s.proposals[cs.Proposals[i].ID] = cs.Proposals[i].Clone()
	}
	for i := range cs.Reminders {
		r := cs.Reminders[i]
		s.reminders[r.ID] = &r
	}
	for _, h := range cs.History {
		s.history[h.BookingID] = append(s.history[h.BookingID], h)
	}
	return nil
}
