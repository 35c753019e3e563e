package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeGateway is an in-process stand-in for local development and tests.
// Charges start unpaid; MarkPaid flips them.
type FakeGateway struct {
	mu   sync.Mutex
	paid map[string]bool
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{paid: make(map[string]bool)}
}

func (g *FakeGateway) Generate(ctx context.Context, appointmentID string, amountCents int64, expiresAt time.Time) (Charge, error) {
	ref := "fake_" + uuid.NewString()
	g.mu.Lock()
	g.paid[ref] = false
	g.mu.Unlock()
	return Charge{
		Reference: ref,
		Code:      fmt.Sprintf("00020126fake%s5204%013d", ref, amountCents),
		ExpiresAt: expiresAt,
	}, nil
}

func (g *FakeGateway) GetStatus(ctx context.Context, reference string) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{Paid: g.paid[reference]}, nil
}

func (g *FakeGateway) MarkPaid(reference string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paid[reference] = true
}
