package model

import (
	"errors"
	"testing"
)

func TestValidTransitions(t *testing.T) {
	allowed := []struct{ from, to AppointmentStatus }{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusCancelled},
	}
	for _, tc := range allowed {
		if !ValidTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to AppointmentStatus }{
		{StatusPending, StatusCompleted},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusConfirmed},
		{StatusCancelled, StatusConfirmed}, // only reachable through a reschedule
		{StatusCancelled, StatusPending},
		{StatusConfirmed, StatusPending},
	}
	for _, tc := range denied {
		if ValidTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestSetStatus(t *testing.T) {
	appt := Appointment{Status: StatusPending}
	if err := appt.SetStatus(StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", appt.Status)
	}

	if err := appt.SetStatus(StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Fatalf("status must not change on rejected transition, got %s", appt.Status)
	}
}
