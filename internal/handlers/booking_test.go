package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fbmeirelles/horamarcada/internal/availability"
	"github.com/fbmeirelles/horamarcada/internal/booking"
	"github.com/fbmeirelles/horamarcada/internal/calendar"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/observability/metrics"
	"github.com/fbmeirelles/horamarcada/internal/outbox"
)

type stubStore struct {
	mu    sync.Mutex
	appts map[string]model.Appointment
}

func newStubStore() *stubStore {
	return &stubStore{appts: make(map[string]model.Appointment)}
}

func (s *stubStore) Create(ctx context.Context, appt model.Appointment, intent *model.PaymentIntent, events []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.appts {
		if other.Status != model.StatusCancelled && other.EntityID() == appt.EntityID() &&
			calendar.Overlaps(appt.StartTime, appt.EndTime, other.StartTime, other.EndTime) {
			return booking.ErrOverlap
		}
	}
	s.appts[appt.ID] = appt
	return nil
}

func (s *stubStore) Get(ctx context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	return appt, nil
}

func (s *stubStore) Move(ctx context.Context, id string, newStart, newEnd time.Time, expectedCount int, newStatus model.AppointmentStatus, events []outbox.Event) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	if appt.RescheduleCount != expectedCount {
		return model.Appointment{}, booking.ErrStale
	}
	appt.StartTime, appt.EndTime, appt.Status = newStart, newEnd, newStatus
	appt.RescheduleCount++
	s.appts[id] = appt
	return appt, nil
}

func (s *stubStore) SetStatus(ctx context.Context, id string, from, to model.AppointmentStatus, reason string, events []outbox.Event) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	if appt.Status != from {
		return model.Appointment{}, booking.ErrStale
	}
	appt.Status = to
	appt.CancelReason = reason
	s.appts[id] = appt
	return appt, nil
}

func (s *stubStore) ListForEntity(ctx context.Context, entityID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appts {
		if appt.EntityID() == entityID && !appt.StartTime.Before(from) && appt.StartTime.Before(to) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (s *stubStore) BusyIntervals(ctx context.Context, entityID string, date time.Time) ([]availability.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []availability.Interval
	for _, appt := range s.appts {
		if appt.Status != model.StatusCancelled && appt.EntityID() == entityID && calendar.SameDay(appt.StartTime, date) {
			out = append(out, availability.Interval{Start: appt.StartTime, End: appt.EndTime, AppointmentID: appt.ID})
		}
	}
	return out, nil
}

type stubCatalog struct{}

func (stubCatalog) Provider(ctx context.Context, id string) (model.Provider, error) {
	if id != "prov-1" {
		return model.Provider{}, booking.ErrNotFound
	}
	return model.Provider{ID: "prov-1", Active: true, AutoConfirm: true}, nil
}

func (stubCatalog) Employee(ctx context.Context, id string) (model.Employee, error) {
	return model.Employee{}, booking.ErrNotFound
}

func (stubCatalog) Service(ctx context.Context, id string) (model.Service, error) {
	if id != "svc-1" {
		return model.Service{}, booking.ErrNotFound
	}
	return model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMinutes: 30, PriceCents: 5000, Active: true}, nil
}

type stubPlanner struct{}

func (stubPlanner) Plan(ctx context.Context, appointmentID string, amountCents int64) (model.PaymentIntent, error) {
	return model.PaymentIntent{ID: uuid.NewString(), AppointmentID: appointmentID, AmountCents: amountCents, Status: model.PaymentPending}, nil
}
func (stubPlanner) Watch(model.PaymentIntent)             {}
func (stubPlanner) Abandon(context.Context, string) error { return nil }

type stubSchedule struct{}

func (stubSchedule) WorkingHours(ctx context.Context, entityID string) (model.WorkingHours, error) {
	days := make(map[time.Weekday]bool)
	for d := time.Sunday; d <= time.Saturday; d++ {
		days[d] = true
	}
	return model.WorkingHours{EntityID: entityID, Days: days, StartHour: 8, EndHour: 18}, nil
}

func (stubSchedule) Exclusions(ctx context.Context, entityID string) ([]model.TimeExclusion, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) (*BookingHandler, *stubStore) {
	t.Helper()
	store := newStubStore()
	resolver := availability.NewResolver(stubSchedule{}, store)
	logger := slog.New(slog.DiscardHandler)
	svc := booking.NewService(store, stubCatalog{}, resolver, stubPlanner{}, booking.DefaultPolicy(), logger)
	m := metrics.NewBookingMetrics(prometheus.NewRegistry())
	return NewBookingHandler(svc, m, logger), store
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

const futureDay = "2030-04-01"

func TestCreateEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	body := fmt.Sprintf(`{"provider_id":"prov-1","client_id":"cli-1","service_id":"svc-1","start_time":"%sT10:00:00Z"}`, futureDay)
	rec := postJSON(t, h.Create, "/api/v1/public/book", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp createResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Appointment.Status != "confirmed" {
		t.Fatalf("expected confirmed, got %s", resp.Appointment.Status)
	}
	if resp.Payment != nil {
		t.Fatal("no payment expected for auto-confirm provider")
	}
}

func TestCreateEndpointConflict(t *testing.T) {
	h, _ := newTestHandler(t)

	body := fmt.Sprintf(`{"provider_id":"prov-1","client_id":"cli-1","service_id":"svc-1","start_time":"%sT10:00:00Z"}`, futureDay)
	if rec := postJSON(t, h.Create, "/api/v1/public/book", body); rec.Code != http.StatusCreated {
		t.Fatalf("first booking: %d", rec.Code)
	}

	rec := postJSON(t, h.Create, "/api/v1/public/book", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Code != booking.CodeSlotAlreadyTaken {
		t.Fatalf("expected %s, got %s", booking.CodeSlotAlreadyTaken, resp.Code)
	}
}

func TestCreateEndpointValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"bad time", `{"provider_id":"prov-1","client_id":"c","service_id":"svc-1","start_time":"tomorrow"}`, http.StatusBadRequest},
		{"missing client", fmt.Sprintf(`{"provider_id":"prov-1","service_id":"svc-1","start_time":"%sT10:00:00Z"}`, futureDay), http.StatusBadRequest},
		{"unknown provider", fmt.Sprintf(`{"provider_id":"nope","client_id":"c","service_id":"svc-1","start_time":"%sT10:00:00Z"}`, futureDay), http.StatusBadRequest},
		{"off-grid start", fmt.Sprintf(`{"provider_id":"prov-1","client_id":"c","service_id":"svc-1","start_time":"%sT10:10:00Z"}`, futureDay), http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := postJSON(t, h.Create, "/api/v1/public/book", tc.body); rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d: %s", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestCreateEndpointMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/book", nil)
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	// Occupy 14:00, then list.
	body := fmt.Sprintf(`{"provider_id":"prov-1","client_id":"cli-1","service_id":"svc-1","start_time":"%sT14:00:00Z"}`, futureDay)
	if rec := postJSON(t, h.Create, "/api/v1/public/book", body); rec.Code != http.StatusCreated {
		t.Fatalf("seed booking: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?entity_id=prov-1&date="+futureDay, nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Working {
		t.Fatal("expected a working day")
	}
	// Default filtering hides the booked slot: 20 grid slots minus one.
	if len(resp.Slots) != 19 {
		t.Fatalf("expected 19 available slots, got %d", len(resp.Slots))
	}
	for _, s := range resp.Slots {
		if s.Label == "14:00" {
			t.Fatal("booked slot must be filtered out by default")
		}
	}

	// include_busy keeps it, flagged.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?entity_id=prov-1&date="+futureDay+"&include_busy=true", nil)
	rec = httptest.NewRecorder()
	h.Slots(rec, req)
	resp = slotsResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 20 {
		t.Fatalf("expected all 20 slots, got %d", len(resp.Slots))
	}
	var found bool
	for _, s := range resp.Slots {
		if s.Label == "14:00" {
			found = true
			if s.Available || s.Reason != "booked" {
				t.Fatalf("unexpected 14:00 slot: %+v", s)
			}
		}
	}
	if !found {
		t.Fatal("missing 14:00 slot with include_busy")
	}
}

func TestSlotsEndpointValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date="+futureDay, nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without entity_id, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?entity_id=prov-1&date=01-04-2030", nil)
	rec = httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	body := fmt.Sprintf(`{"provider_id":"prov-1","client_id":"cli-1","service_id":"svc-1","start_time":"%sT10:00:00Z"}`, futureDay)
	rec := postJSON(t, h.Create, "/api/v1/public/book", body)
	var created createResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	moveBody := fmt.Sprintf(`{"appointment_id":"%s","new_start":"%sT15:00:00Z"}`, created.Appointment.AppointmentID, futureDay)
	rec = postJSON(t, h.Reschedule, "/api/v1/appointments/reschedule", moveBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Second attempt hits the policy limit: 422.
	moveBody = fmt.Sprintf(`{"appointment_id":"%s","new_start":"%sT16:00:00Z"}`, created.Appointment.AppointmentID, futureDay)
	rec = postJSON(t, h.Reschedule, "/api/v1/appointments/reschedule", moveBody)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != booking.CodeRescheduleLimitExceeded {
		t.Fatalf("expected limit code, got %s", resp.Code)
	}
}

func TestCancelEndpointNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.Cancel, "/api/v1/appointments/cancel", `{"appointment_id":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelEndpointProviderReason(t *testing.T) {
	h, _ := newTestHandler(t)

	body := fmt.Sprintf(`{"provider_id":"prov-1","client_id":"cli-1","service_id":"svc-1","start_time":"%sT10:00:00Z"}`, futureDay)
	rec := postJSON(t, h.Create, "/api/v1/public/book", body)
	var created createResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	cancelBody := fmt.Sprintf(`{"appointment_id":"%s","by_provider":true}`, created.Appointment.AppointmentID)
	if rec := postJSON(t, h.Cancel, "/api/v1/appointments/cancel", cancelBody); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without reason, got %d", rec.Code)
	}

	cancelBody = fmt.Sprintf(`{"appointment_id":"%s","by_provider":true,"reason":"closed that day"}`, created.Appointment.AppointmentID)
	rec = postJSON(t, h.Cancel, "/api/v1/appointments/cancel", cancelBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var appt appointmentPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if appt.Status != "cancelled" || appt.CancelReason != "closed that day" {
		t.Fatalf("unexpected cancel payload: %+v", appt)
	}
}

func TestListEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	body := fmt.Sprintf(`{"provider_id":"prov-1","client_id":"cli-1","service_id":"svc-1","start_time":"%sT10:00:00Z"}`, futureDay)
	if rec := postJSON(t, h.Create, "/api/v1/public/book", body); rec.Code != http.StatusCreated {
		t.Fatalf("seed: %d", rec.Code)
	}

	url := fmt.Sprintf("/api/v1/appointments?entity_id=prov-1&from=%sT00:00:00Z&to=%sT23:59:59Z", futureDay, futureDay)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Appointments []appointmentPayload `json:"appointments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Appointments) != 1 {
		t.Fatalf("expected one appointment, got %d", len(resp.Appointments))
	}
}
