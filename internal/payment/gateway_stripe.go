package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// StripeGateway charges through Stripe's PIX rails. Amounts are BRL minor
// units end to end.
type StripeGateway struct{}

func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

func (g *StripeGateway) Generate(ctx context.Context, appointmentID string, amountCents int64, expiresAt time.Time) (Charge, error) {
	params := &stripe.PaymentIntentParams{
		Params:             stripe.Params{Context: ctx},
		Amount:             stripe.Int64(amountCents),
		Currency:           stripe.String(string(stripe.CurrencyBRL)),
		PaymentMethodTypes: stripe.StringSlice([]string{"pix"}),
		PaymentMethodOptions: &stripe.PaymentIntentPaymentMethodOptionsParams{
			Pix: &stripe.PaymentIntentPaymentMethodOptionsPixParams{
				ExpiresAt: stripe.Int64(expiresAt.Unix()),
			},
		},
	}
	params.AddMetadata("appointment_id", appointmentID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return Charge{}, fmt.Errorf("create stripe payment intent: %w", err)
	}

	code := pi.ClientSecret
	if pi.NextAction != nil && pi.NextAction.PixDisplayQRCode != nil {
		code = pi.NextAction.PixDisplayQRCode.Data
	}
	return Charge{
		Reference: pi.ID,
		Code:      code,
		ExpiresAt: expiresAt,
	}, nil
}

func (g *StripeGateway) GetStatus(ctx context.Context, reference string) (Status, error) {
	pi, err := paymentintent.Get(reference, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return Status{}, fmt.Errorf("fetch stripe payment intent: %w", err)
	}
	return Status{Paid: pi.Status == stripe.PaymentIntentStatusSucceeded}, nil
}
