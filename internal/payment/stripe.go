package payment

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/stripe/stripe-go/v82"
)

// StripeGateway charges cards by creating and confirming a PaymentIntent
// in one call.
type StripeGateway struct {
	sc *stripe.Client
}

// NewStripeGateway builds a gateway from a secret API key.
func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{sc: stripe.NewClient(secretKey)}
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.Token),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	params.AddMetadata("booking_id", req.BookingID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			log.Printf("payment: card declined for booking %s: %s", req.BookingID, se.Msg)
			return ChargeResult{Succeeded: false, Message: se.Msg}, nil
		}
		return ChargeResult{}, err
	}
	res := ChargeResult{Reference: pi.ID}
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		res.Succeeded = true
	} else {
		res.Message = string(pi.Status)
	}
	return res, nil
}
