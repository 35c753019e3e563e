package model

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentExpired   PaymentStatus = "expired"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentIntent is a time-boxed upfront charge tied to one appointment. An
// appointment may accumulate several intents over time (each expiry or manual
// cancellation allows a fresh one), but at most one is pending.
type PaymentIntent struct {
	ID            string
	AppointmentID string
	Reference     string // gateway transaction reference
	Code          string // copy-and-paste payment code shown to the client
	AmountCents   int64
	Status        PaymentStatus
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ResolvedAt    *time.Time
}

// Terminal reports whether the intent can no longer change state.
func (p PaymentIntent) Terminal() bool {
	return p.Status != PaymentPending
}
