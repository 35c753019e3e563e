package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/observability/metrics"
	"github.com/fbmeirelles/horamarcada/internal/payment"
)

type PaymentHandler struct {
	controller *payment.Controller
	metrics    *metrics.BookingMetrics
	logger     *slog.Logger
}

func NewPaymentHandler(controller *payment.Controller, m *metrics.BookingMetrics, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{controller: controller, metrics: m, logger: logger}
}

type intentPayload struct {
	IntentID         string `json:"intent_id"`
	AppointmentID    string `json:"appointment_id"`
	Status           string `json:"status"`
	Code             string `json:"code,omitempty"`
	AmountCents      int64  `json:"amount_cents"`
	ExpiresAt        string `json:"expires_at"`
	SecondsRemaining int64  `json:"seconds_remaining"`
}

func toIntentPayload(intent model.PaymentIntent, remaining time.Duration) intentPayload {
	p := intentPayload{
		IntentID:         intent.ID,
		AppointmentID:    intent.AppointmentID,
		Status:           string(intent.Status),
		AmountCents:      intent.AmountCents,
		ExpiresAt:        intent.ExpiresAt.Format(time.RFC3339),
		SecondsRemaining: int64(remaining / time.Second),
	}
	// The copy-and-paste code is only useful while the charge can still be
	// paid.
	if intent.Status == model.PaymentPending {
		p.Code = intent.Code
	}
	return p
}

// Status serves GET /api/v1/payments/status?intent_id=... for the client's
// countdown polling.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	intentID := strings.TrimSpace(r.URL.Query().Get("intent_id"))
	if intentID == "" {
		http.Error(w, "intent_id is required", http.StatusBadRequest)
		return
	}

	intent, remaining, err := h.controller.Status(r.Context(), intentID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntentPayload(intent, remaining))
}

type cancelIntentRequest struct {
	IntentID string `json:"intent_id"`
}

// Cancel serves POST /api/v1/payments/cancel: the client backs out during
// the pending window, which also cancels the appointment.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.IntentID = strings.TrimSpace(req.IntentID)
	if req.IntentID == "" {
		http.Error(w, "intent_id is required", http.StatusBadRequest)
		return
	}

	intent, err := h.controller.CancelIntent(r.Context(), req.IntentID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.metrics.ObservePaymentResolved(string(intent.Status))
	writeJSON(w, http.StatusOK, toIntentPayload(intent, 0))
}

type regenerateRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// Regenerate serves POST /api/v1/payments/regenerate: a fresh charge for an
// appointment whose previous window was lost.
func (h *PaymentHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	intent, err := h.controller.Regenerate(r.Context(), req.AppointmentID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIntentPayload(intent, time.Until(intent.ExpiresAt)))
}
