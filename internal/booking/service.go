// Package booking owns the appointment lifecycle: slot-validated creation,
// the status state machine, cancellation, and the reschedule policy. It talks
// to the persisted store and the payment planner through narrow ports so the
// whole lifecycle is testable against in-memory fakes.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fbmeirelles/horamarcada/internal/availability"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/outbox"
)

// Store persists appointments. Create and Move must be atomic with respect to
// the overlap invariant: two concurrent writes claiming intersecting ranges
// for one entity must yield exactly one success and one ErrOverlap.
type Store interface {
	Create(ctx context.Context, appt model.Appointment, intent *model.PaymentIntent, events []outbox.Event) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	// Move atomically relocates an appointment, bumping its reschedule count.
	// Returns ErrStale when the stored count no longer matches expectedCount.
	Move(ctx context.Context, id string, newStart, newEnd time.Time, expectedCount int, newStatus model.AppointmentStatus, events []outbox.Event) (model.Appointment, error)
	// SetStatus applies a transition guarded by the expected current status.
	// Returns ErrStale when the stored status has moved on.
	SetStatus(ctx context.Context, id string, from, to model.AppointmentStatus, reason string, events []outbox.Event) (model.Appointment, error)
	ListForEntity(ctx context.Context, entityID string, from, to time.Time) ([]model.Appointment, error)
}

// Catalog resolves the read-mostly reference data behind a booking request.
type Catalog interface {
	Provider(ctx context.Context, id string) (model.Provider, error)
	Employee(ctx context.Context, id string) (model.Employee, error)
	Service(ctx context.Context, id string) (model.Service, error)
}

// PaymentPlanner is the payment controller seen from the booking side.
// Plan builds an intent without persisting it; Watch arms the expiry
// countdown and the status poller once the intent is committed.
type PaymentPlanner interface {
	Plan(ctx context.Context, appointmentID string, amountCents int64) (model.PaymentIntent, error)
	Watch(intent model.PaymentIntent)
	Abandon(ctx context.Context, appointmentID string) error
}

type Service struct {
	store    Store
	catalog  Catalog
	resolver *availability.Resolver
	payments PaymentPlanner
	policy   Policy
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, catalog Catalog, resolver *availability.Resolver, payments PaymentPlanner, policy Policy, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		catalog:  catalog,
		resolver: resolver,
		payments: payments,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

type CreateRequest struct {
	ProviderID string
	EmployeeID string
	ClientID   string
	ServiceID  string
	Start      time.Time
}

func (r CreateRequest) validate() error {
	if strings.TrimSpace(r.ProviderID) == "" {
		return NewError(KindValidation, "", "provider_id is required")
	}
	if strings.TrimSpace(r.ClientID) == "" {
		return NewError(KindValidation, "", "client_id is required")
	}
	if strings.TrimSpace(r.ServiceID) == "" {
		return NewError(KindValidation, "", "service_id is required")
	}
	if r.Start.IsZero() {
		return NewError(KindValidation, "", "start is required")
	}
	return nil
}

// Create books a new appointment. The availability check here is advisory;
// the store's overlap constraint is what actually serializes concurrent
// writers, so losing a race surfaces as ErrOverlap from Create even after a
// clean resolve.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Appointment, *model.PaymentIntent, error) {
	if err := req.validate(); err != nil {
		return model.Appointment{}, nil, err
	}

	provider, err := s.catalog.Provider(ctx, req.ProviderID)
	if err != nil {
		return model.Appointment{}, nil, mapCatalogErr(err, "provider")
	}
	if !provider.Active {
		return model.Appointment{}, nil, NewError(KindValidation, "", "provider is not active")
	}

	entityID := provider.ID
	if req.EmployeeID != "" {
		employee, err := s.catalog.Employee(ctx, req.EmployeeID)
		if err != nil {
			return model.Appointment{}, nil, mapCatalogErr(err, "employee")
		}
		if employee.ProviderID != provider.ID {
			return model.Appointment{}, nil, NewError(KindValidation, "", "employee does not belong to provider")
		}
		if !employee.Active {
			return model.Appointment{}, nil, NewError(KindValidation, "", "employee is not active")
		}
		entityID = employee.ID
	}

	svc, err := s.catalog.Service(ctx, req.ServiceID)
	if err != nil {
		return model.Appointment{}, nil, mapCatalogErr(err, "service")
	}
	if svc.ProviderID != provider.ID {
		return model.Appointment{}, nil, NewError(KindValidation, "", "service does not belong to provider")
	}
	if !svc.Active {
		return model.Appointment{}, nil, NewError(KindValidation, "", "service is not active")
	}

	start := req.Start.UTC()
	if err := s.checkSlot(ctx, entityID, start, availability.Options{ServiceDuration: svc.Duration()}); err != nil {
		return model.Appointment{}, nil, err
	}

	now := s.now().UTC()
	status := model.StatusPending
	if !provider.PaymentRequired && provider.AutoConfirm {
		status = model.StatusConfirmed
	}

	appt := model.Appointment{
		ID:         uuid.NewString(),
		ProviderID: provider.ID,
		EmployeeID: req.EmployeeID,
		ClientID:   req.ClientID,
		ServiceID:  svc.ID,
		StartTime:  start,
		EndTime:    start.Add(svc.Duration()),
		Status:     status,
		CreatedAt:  now,
	}

	var intent *model.PaymentIntent
	if provider.PaymentRequired {
		planned, err := s.payments.Plan(ctx, appt.ID, svc.PriceCents)
		if err != nil {
			return model.Appointment{}, nil, WrapError(KindUnavailable, "", "payment gateway unavailable", err)
		}
		intent = &planned
	}

	events, err := appointmentEvents(appt, outbox.TopicAppointmentCreated)
	if err != nil {
		return model.Appointment{}, nil, err
	}
	if err := s.store.Create(ctx, appt, intent, events); err != nil {
		if errors.Is(err, ErrOverlap) {
			return model.Appointment{}, nil, WrapError(KindConflict, CodeSlotAlreadyTaken, "slot was taken by a concurrent booking", err)
		}
		return model.Appointment{}, nil, fmt.Errorf("persist appointment: %w", err)
	}
	if intent != nil {
		s.payments.Watch(*intent)
	}

	s.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"entity_id", entityID,
		"start", appt.StartTime,
		"status", appt.Status,
		"payment_required", provider.PaymentRequired,
	)
	return appt, intent, nil
}

// Confirm applies the provider's manual confirmation of a pending booking.
func (s *Service) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	return s.transition(ctx, id, model.StatusPending, model.StatusConfirmed, "", outbox.TopicAppointmentConfirmed)
}

// Complete closes out a confirmed appointment after it happened.
func (s *Service) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return s.transition(ctx, id, model.StatusConfirmed, model.StatusCompleted, "", "")
}

// Cancel voids an appointment. Provider-initiated cancellations must carry a
// reason; the client side may omit it.
func (s *Service) Cancel(ctx context.Context, id, reason string, byProvider bool) (model.Appointment, error) {
	if byProvider && strings.TrimSpace(reason) == "" {
		return model.Appointment{}, NewError(KindValidation, CodeCancellationReasonRequired, "cancellation reason is required")
	}

	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, mapStoreGetErr(err)
	}
	if !model.ValidTransition(appt.Status, model.StatusCancelled) {
		return model.Appointment{}, NewError(KindPolicy, CodeInvalidTransition,
			fmt.Sprintf("cannot cancel a %s appointment", appt.Status))
	}

	cancelled, err := s.transitionFrom(ctx, appt, model.StatusCancelled, reason, outbox.TopicAppointmentCancelled)
	if err != nil {
		return model.Appointment{}, err
	}

	// A pending upfront charge has nothing left to collect.
	if err := s.payments.Abandon(ctx, id); err != nil {
		s.logger.Warn("abandon pending payment intent failed", "appointment_id", id, "error", err)
	}
	return cancelled, nil
}

// Availability resolves the public slot grid for an entity and date. When a
// service is named, its duration widens the occupancy check so only slots
// that fit the whole service come back available.
func (s *Service) Availability(ctx context.Context, entityID string, date time.Time, serviceID string) (availability.Day, error) {
	if entityID == "" {
		return availability.Day{}, NewError(KindValidation, "", "entity_id is required")
	}
	var opts availability.Options
	if serviceID != "" {
		svc, err := s.catalog.Service(ctx, serviceID)
		if err != nil {
			return availability.Day{}, mapCatalogErr(err, "service")
		}
		opts.ServiceDuration = svc.Duration()
	}
	day, err := s.resolver.Resolve(ctx, entityID, date, opts)
	if err != nil {
		return availability.Day{}, WrapError(KindUnavailable, "", "availability lookup failed", err)
	}
	return day, nil
}

// List returns an entity's appointments inside [from, to).
func (s *Service) List(ctx context.Context, entityID string, from, to time.Time) ([]model.Appointment, error) {
	if entityID == "" {
		return nil, NewError(KindValidation, "", "entity_id is required")
	}
	if !from.Before(to) {
		return nil, NewError(KindValidation, "", "from must be before to")
	}
	return s.store.ListForEntity(ctx, entityID, from, to)
}

// checkSlot resolves the target day and verifies the requested start is a
// bookable grid slot for the given options.
func (s *Service) checkSlot(ctx context.Context, entityID string, start time.Time, opts availability.Options) error {
	if !start.After(s.now().UTC()) {
		return NewError(KindValidation, CodeSlotUnavailable, "start must be in the future")
	}
	day, err := s.resolver.Resolve(ctx, entityID, start, opts)
	if err != nil {
		return WrapError(KindUnavailable, "", "availability lookup failed", err)
	}
	if !day.Working {
		return NewError(KindPolicy, CodeNonWorkingDay, "entity does not work on this day")
	}
	slot, ok := day.SlotAt(start)
	if !ok {
		return NewError(KindValidation, CodeSlotUnavailable, "start is not a bookable slot")
	}
	if !slot.Available {
		if slot.Reason == availability.ReasonBooked {
			return NewError(KindConflict, CodeSlotAlreadyTaken, "slot is already booked")
		}
		return NewError(KindPolicy, CodeSlotUnavailable,
			fmt.Sprintf("slot is blocked: %s", slot.Reason))
	}
	return nil
}

func (s *Service) transition(ctx context.Context, id string, from, to model.AppointmentStatus, reason, topic string) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, mapStoreGetErr(err)
	}
	if appt.Status != from {
		return model.Appointment{}, NewError(KindPolicy, CodeInvalidTransition,
			fmt.Sprintf("appointment is %s, expected %s", appt.Status, from))
	}
	return s.transitionFrom(ctx, appt, to, reason, topic)
}

func (s *Service) transitionFrom(ctx context.Context, appt model.Appointment, to model.AppointmentStatus, reason, topic string) (model.Appointment, error) {
	var events []outbox.Event
	if topic != "" {
		updated := appt
		updated.Status = to
		updated.CancelReason = reason
		var err error
		events, err = appointmentEvents(updated, topic)
		if err != nil {
			return model.Appointment{}, err
		}
	}

	result, err := s.store.SetStatus(ctx, appt.ID, appt.Status, to, reason, events)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return model.Appointment{}, NewError(KindValidation, CodeAppointmentNotFound, "appointment not found")
		case errors.Is(err, ErrStale):
			return model.Appointment{}, WrapError(KindConflict, CodeInvalidTransition, "appointment changed concurrently", err)
		}
		return model.Appointment{}, fmt.Errorf("update appointment status: %w", err)
	}

	s.logger.Info("appointment status changed",
		"appointment_id", appt.ID,
		"from", appt.Status,
		"to", to,
	)
	return result, nil
}

func mapStoreGetErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return NewError(KindValidation, CodeAppointmentNotFound, "appointment not found")
	}
	return fmt.Errorf("load appointment: %w", err)
}

func mapCatalogErr(err error, what string) error {
	if errors.Is(err, ErrNotFound) {
		return NewError(KindValidation, "", what+" not found")
	}
	return fmt.Errorf("load %s: %w", what, err)
}
