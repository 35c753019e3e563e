package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fbmeirelles/horamarcada/internal/booking"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/observability/metrics"
	"github.com/fbmeirelles/horamarcada/internal/payment"
)

type stubIntentStore struct {
	mu      sync.Mutex
	intents map[string]model.PaymentIntent
}

func newStubIntentStore() *stubIntentStore {
	return &stubIntentStore{intents: make(map[string]model.PaymentIntent)}
}

func (s *stubIntentStore) Intent(ctx context.Context, id string) (model.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return model.PaymentIntent{}, booking.ErrNotFound
	}
	return intent, nil
}

func (s *stubIntentStore) LatestForAppointment(ctx context.Context, appointmentID string) (model.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, intent := range s.intents {
		if intent.AppointmentID == appointmentID {
			return intent, nil
		}
	}
	return model.PaymentIntent{}, booking.ErrNotFound
}

func (s *stubIntentStore) PendingIntents(ctx context.Context) ([]model.PaymentIntent, error) {
	return nil, nil
}

func (s *stubIntentStore) OverdueIntents(ctx context.Context, asOf time.Time) ([]model.PaymentIntent, error) {
	return nil, nil
}

func (s *stubIntentStore) AddIntent(ctx context.Context, intent model.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[intent.ID] = intent
	return nil
}

func (s *stubIntentStore) Resolve(ctx context.Context, intentID string, to model.PaymentStatus, res *payment.AppointmentResolution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[intentID]
	if !ok {
		return false, booking.ErrNotFound
	}
	if intent.Status != model.PaymentPending {
		return false, nil
	}
	intent.Status = to
	s.intents[intentID] = intent
	return true, nil
}

func newPaymentTestHandler(t *testing.T) (*PaymentHandler, *stubIntentStore) {
	t.Helper()
	store := newStubIntentStore()
	logger := slog.New(slog.DiscardHandler)
	controller := payment.NewController(store, payment.NewFakeGateway(), logger, payment.Config{Window: time.Minute})
	t.Cleanup(controller.Close)
	m := metrics.NewBookingMetrics(prometheus.NewRegistry())
	return NewPaymentHandler(controller, m, logger), store
}

func TestPaymentStatusEndpoint(t *testing.T) {
	h, store := newPaymentTestHandler(t)
	store.intents["int-1"] = model.PaymentIntent{
		ID: "int-1", AppointmentID: "appt-1", Code: "pix-code",
		AmountCents: 5000, Status: model.PaymentPending,
		ExpiresAt: time.Now().Add(time.Minute),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/status?intent_id=int-1", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp intentPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "pending" || resp.Code != "pix-code" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.SecondsRemaining <= 0 || resp.SecondsRemaining > 60 {
		t.Fatalf("unexpected countdown: %d", resp.SecondsRemaining)
	}
}

func TestPaymentStatusEndpointNotFound(t *testing.T) {
	h, _ := newPaymentTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/status?intent_id=missing", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPaymentCancelEndpoint(t *testing.T) {
	h, store := newPaymentTestHandler(t)
	store.intents["int-1"] = model.PaymentIntent{
		ID: "int-1", AppointmentID: "appt-1",
		Status:    model.PaymentPending,
		ExpiresAt: time.Now().Add(time.Minute),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/cancel", strings.NewReader(`{"intent_id":"int-1"}`))
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp intentPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", resp.Status)
	}
	if resp.Code != "" {
		t.Fatal("closed intents must not expose the payment code")
	}

	// Cancelling again: the intent already left pending, 422.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/cancel", strings.NewReader(`{"intent_id":"int-1"}`))
	h.Cancel(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestPaymentRegenerateEndpoint(t *testing.T) {
	h, store := newPaymentTestHandler(t)
	store.intents["int-1"] = model.PaymentIntent{
		ID: "int-1", AppointmentID: "appt-1", AmountCents: 5000,
		Status:    model.PaymentExpired,
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/regenerate", strings.NewReader(`{"appointment_id":"appt-1"}`))
	rec := httptest.NewRecorder()
	h.Regenerate(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp intentPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "pending" || resp.AmountCents != 5000 || resp.Code == "" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}
