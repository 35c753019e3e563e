package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fbmeirelles/horamarcada/internal/booking"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/observability/metrics"
)

type BookingHandler struct {
	svc     *booking.Service
	metrics *metrics.BookingMetrics
	logger  *slog.Logger
}

func NewBookingHandler(svc *booking.Service, m *metrics.BookingMetrics, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, metrics: m, logger: logger}
}

type slotItem struct {
	Label     string `json:"label"`
	StartTime string `json:"start_time"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

type slotsResponse struct {
	Date    string     `json:"date"`
	Working bool       `json:"working"`
	Slots   []slotItem `json:"slots"`
}

// Slots serves GET /api/v1/public/slots?entity_id=...&date=2026-09-01.
// include_busy=true keeps occupied slots in the response for reschedule UIs;
// the default filters them out for first-time booking.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	entityID := strings.TrimSpace(q.Get("entity_id"))
	if entityID == "" {
		http.Error(w, "entity_id is required", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", q.Get("date"))
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	includeBusy := q.Get("include_busy") == "true"

	start := time.Now()
	day, err := h.svc.Availability(r.Context(), entityID, date, strings.TrimSpace(q.Get("service_id")))
	if err != nil {
		h.metrics.ObserveResolveLatency("error", time.Since(start).Seconds())
		writeDomainError(w, h.logger, err)
		return
	}
	h.metrics.ObserveResolveLatency("ok", time.Since(start).Seconds())

	resp := slotsResponse{Date: day.Date.Format("2006-01-02"), Working: day.Working, Slots: []slotItem{}}
	for _, s := range day.Slots {
		if !s.Available && !includeBusy {
			continue
		}
		resp.Slots = append(resp.Slots, slotItem{
			Label:     s.Label,
			StartTime: s.Start.Format(time.RFC3339),
			Available: s.Available,
			Reason:    string(s.Reason),
			Warning:   s.Warning,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type createRequest struct {
	ProviderID string `json:"provider_id"`
	EmployeeID string `json:"employee_id"`
	ClientID   string `json:"client_id"`
	ServiceID  string `json:"service_id"`
	StartTime  string `json:"start_time"`
}

type appointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	ProviderID      string `json:"provider_id"`
	EmployeeID      string `json:"employee_id,omitempty"`
	ClientID        string `json:"client_id"`
	ServiceID       string `json:"service_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	RescheduleCount int    `json:"reschedule_count"`
	CancelReason    string `json:"cancel_reason,omitempty"`
}

type paymentPayload struct {
	IntentID    string `json:"intent_id"`
	Code        string `json:"code"`
	AmountCents int64  `json:"amount_cents"`
	ExpiresAt   string `json:"expires_at"`
}

type createResponse struct {
	Appointment appointmentPayload `json:"appointment"`
	Payment     *paymentPayload    `json:"payment,omitempty"`
}

func toAppointmentPayload(appt model.Appointment) appointmentPayload {
	return appointmentPayload{
		AppointmentID:   appt.ID,
		ProviderID:      appt.ProviderID,
		EmployeeID:      appt.EmployeeID,
		ClientID:        appt.ClientID,
		ServiceID:       appt.ServiceID,
		StartTime:       appt.StartTime.Format(time.RFC3339),
		EndTime:         appt.EndTime.Format(time.RFC3339),
		Status:          string(appt.Status),
		RescheduleCount: appt.RescheduleCount,
		CancelReason:    appt.CancelReason,
	}
}

// Create serves POST /api/v1/public/book.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time, expected RFC3339", http.StatusBadRequest)
		return
	}

	appt, intent, err := h.svc.Create(r.Context(), booking.CreateRequest{
		ProviderID: strings.TrimSpace(req.ProviderID),
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		ClientID:   strings.TrimSpace(req.ClientID),
		ServiceID:  strings.TrimSpace(req.ServiceID),
		Start:      start,
	})
	if err != nil {
		h.metrics.ObserveBooking("error")
		writeDomainError(w, h.logger, err)
		return
	}
	h.metrics.ObserveBooking("ok")

	resp := createResponse{Appointment: toAppointmentPayload(appt)}
	if intent != nil {
		resp.Payment = &paymentPayload{
			IntentID:    intent.ID,
			Code:        intent.Code,
			AmountCents: intent.AmountCents,
			ExpiresAt:   intent.ExpiresAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	NewStart      string `json:"new_start"`
}

// Reschedule serves POST /api/v1/appointments/reschedule.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.NewStart)
	if err != nil {
		http.Error(w, "invalid new_start, expected RFC3339", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), req.AppointmentID, newStart)
	if err != nil {
		h.metrics.ObserveReschedule("error")
		writeDomainError(w, h.logger, err)
		return
	}
	h.metrics.ObserveReschedule("ok")
	writeJSON(w, http.StatusOK, toAppointmentPayload(appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
	ByProvider    bool   `json:"by_provider"`
}

// Cancel serves POST /api/v1/appointments/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Cancel(r.Context(), req.AppointmentID, strings.TrimSpace(req.Reason), req.ByProvider)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentPayload(appt))
}

type statusChangeRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// Confirm serves POST /api/v1/appointments/confirm.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.svc.Confirm)
}

// Complete serves POST /api/v1/appointments/complete.
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.svc.Complete)
}

func (h *BookingHandler) statusChange(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (model.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	appt, err := op(r.Context(), req.AppointmentID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentPayload(appt))
}

// List serves GET /api/v1/appointments?entity_id=...&from=...&to=...
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		http.Error(w, "invalid from, expected RFC3339", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		http.Error(w, "invalid to, expected RFC3339", http.StatusBadRequest)
		return
	}

	appts, err := h.svc.List(r.Context(), strings.TrimSpace(q.Get("entity_id")), from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]appointmentPayload, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentPayload(appt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}
