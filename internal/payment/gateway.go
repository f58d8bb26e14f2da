// Package payment wraps the external card payment gateway. The engine only
// needs a single charge call; everything else about payments (refunds,
// payouts, disputes) is handled outside this service.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrDeclined is returned when the gateway refused the charge.
var ErrDeclined = errors.New("payment declined")

// ChargeRequest describes one card charge for a booking. Token is the
// gateway payment method reference obtained by the client; IdempotencyKey
// protects against double charges when a request is retried.
type ChargeRequest struct {
	BookingID      string
	AmountCents    int64
	Currency       string
	Token          string
	IdempotencyKey string
}

// ChargeResult is the gateway outcome. Reference is the gateway's id for
// the charge and is stored on the booking.
type ChargeResult struct {
	Reference string
	Succeeded bool
	Message   string
}

// Gateway charges cards.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Stub is an in-process Gateway for local runs and tests. Tokens listed
// in Decline are refused; every other token succeeds. Calls are recorded.
type Stub struct {
	mu      sync.Mutex
	Decline map[string]bool
	Err     error
	Calls   []ChargeRequest
}

// NewStub returns a Stub that declines the given tokens.
func NewStub(declined ...string) *Stub {
	s := &Stub{Decline: map[string]bool{}}
	for _, t := range declined {
		s.Decline[t] = true
	}
	return s
}

func (s *Stub) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, req)
	if s.Err != nil {
		return ChargeResult{}, s.Err
	}
	if req.AmountCents <= 0 {
		return ChargeResult{}, fmt.Errorf("invalid amount %d", req.AmountCents)
	}
	if s.Decline[req.Token] {
		return ChargeResult{Succeeded: false, Message: "card declined"}, nil
	}
	return ChargeResult{Reference: "stub_" + uuid.NewString(), Succeeded: true}, nil
}
