package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fbmeirelles/horamarcada/internal/availability"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/outbox"
)

// Policy holds the tunable booking rules. Values come from configuration; the
// defaults match the product's standard plan.
type Policy struct {
	// MaxReschedules caps how many times one appointment can be moved.
	MaxReschedules int
	// MinLeadTime is how far in the future an appointment's start must be
	// for the client to still move it.
	MinLeadTime time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxReschedules: 1, MinLeadTime: 30 * time.Minute}
}

// Reschedule moves an appointment to a new start. Rules, checked in order:
//
//  1. The reschedule count must be under the policy limit.
//  2. Completed appointments cannot move.
//  3. The current start must be at least MinLeadTime away, unless the
//     appointment is cancelled (moving a cancelled appointment reactivates
//     it, so the old start no longer matters).
//  4. The target slot must be available, ignoring the appointment's own
//     occupancy.
//
// The new end is derived from the stored interval length, not from the
// service catalog, so a service whose duration changed since booking keeps
// its original length.
func (s *Service) Reschedule(ctx context.Context, id string, newStart time.Time) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, mapStoreGetErr(err)
	}

	if appt.RescheduleCount >= s.policy.MaxReschedules {
		return model.Appointment{}, NewError(KindPolicy, CodeRescheduleLimitExceeded,
			fmt.Sprintf("appointment was already rescheduled %d time(s)", appt.RescheduleCount))
	}
	if appt.Status == model.StatusCompleted {
		return model.Appointment{}, NewError(KindPolicy, CodeNotReschedulable, "completed appointments cannot be rescheduled")
	}
	if appt.Status != model.StatusCancelled && s.now().Add(s.policy.MinLeadTime).After(appt.StartTime) {
		return model.Appointment{}, NewError(KindPolicy, CodeInsufficientLeadTime,
			fmt.Sprintf("appointments can only be rescheduled up to %s before their start", s.policy.MinLeadTime))
	}

	newStart = newStart.UTC()
	opts := availability.Options{
		ServiceDuration:      appt.Duration(),
		ExcludeAppointmentID: appt.ID,
	}
	if err := s.checkSlot(ctx, appt.EntityID(), newStart, opts); err != nil {
		return model.Appointment{}, err
	}

	// Moving a cancelled appointment brings it back to life as confirmed.
	newStatus := appt.Status
	if appt.Status == model.StatusCancelled {
		newStatus = model.StatusConfirmed
	}

	moved := appt
	moved.StartTime = newStart
	moved.EndTime = newStart.Add(appt.Duration())
	moved.Status = newStatus
	events, err := appointmentEvents(moved, outbox.TopicAppointmentRescheduled)
	if err != nil {
		return model.Appointment{}, err
	}

	result, err := s.store.Move(ctx, appt.ID, moved.StartTime, moved.EndTime, appt.RescheduleCount, newStatus, events)
	if err != nil {
		switch {
		case errors.Is(err, ErrOverlap):
			return model.Appointment{}, WrapError(KindConflict, CodeSlotAlreadyTaken, "slot was taken by a concurrent booking", err)
		case errors.Is(err, ErrStale):
			return model.Appointment{}, WrapError(KindConflict, CodeRescheduleLimitExceeded, "appointment was rescheduled concurrently", err)
		case errors.Is(err, ErrNotFound):
			return model.Appointment{}, NewError(KindValidation, CodeAppointmentNotFound, "appointment not found")
		}
		return model.Appointment{}, fmt.Errorf("move appointment: %w", err)
	}

	s.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"old_start", appt.StartTime,
		"new_start", result.StartTime,
		"reschedule_count", result.RescheduleCount,
	)
	return result, nil
}
