package model

import "errors"

var ErrInvalidTransition = errors.New("invalid status transition")

// ValidTransition reports whether an appointment may move from one status to
// another through the regular lifecycle. Reactivating a cancelled appointment
// is deliberately absent: that path exists only through a reschedule, which
// has its own guard on the reschedule count.
func ValidTransition(from, to AppointmentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// SetStatus applies a regular lifecycle transition.
func (a *Appointment) SetStatus(to AppointmentStatus) error {
	if !ValidTransition(a.Status, to) {
		return ErrInvalidTransition
	}
	a.Status = to
	return nil
}
