package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubCharge(t *testing.T) {
	s := NewStub("tok_declined")
	ctx := context.Background()

	res, err := s.Charge(ctx, ChargeRequest{BookingID: "b1", AmountCents: 1500, Currency: "USD", Token: "tok_visa", IdempotencyKey: "b1:1"})
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Contains(t, res.Reference, "stub_")

	res, err = s.Charge(ctx, ChargeRequest{BookingID: "b1", AmountCents: 1500, Currency: "USD", Token: "tok_declined"})
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, "card declined", res.Message)

	_, err = s.Charge(ctx, ChargeRequest{BookingID: "b1", Token: "tok_visa"})
	assert.Error(t, err)

	s.Err = assert.AnError
	_, err = s.Charge(ctx, ChargeRequest{BookingID: "b1", AmountCents: 1, Token: "tok_visa"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, s.Calls, 4)
}
