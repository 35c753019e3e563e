// Package payment runs the upfront-charge lifecycle: intent creation against
// the gateway, the per-intent expiry countdown and status polling, and the
// cancellation side effects on the owning appointment.
package payment

import (
	"context"
	"time"
)

// Charge is what the gateway hands back for a newly created payment.
type Charge struct {
	Reference string
	Code      string
	ExpiresAt time.Time
}

// Status is one observation of a charge at the gateway.
type Status struct {
	Paid bool
}

// Gateway abstracts the external PIX processor.
type Gateway interface {
	Generate(ctx context.Context, appointmentID string, amountCents int64, expiresAt time.Time) (Charge, error)
	GetStatus(ctx context.Context, reference string) (Status, error)
}
