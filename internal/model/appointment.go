package model

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is a committed booking. EndTime is authoritative: it is fixed at
// booking time from the service duration and never recomputed afterwards, so
// later edits to the service catalog cannot shift existing bookings.
type Appointment struct {
	ID              string
	ProviderID      string
	EmployeeID      string // empty when the provider works alone
	ClientID        string
	ServiceID       string
	StartTime       time.Time
	EndTime         time.Time
	Status          AppointmentStatus
	RescheduleCount int
	CancelReason    string
	CancelledAt     *time.Time
	CreatedAt       time.Time
}

// EntityID returns the schedulable entity whose calendar this appointment
// occupies: the employee when one is assigned, otherwise the provider.
func (a Appointment) EntityID() string {
	if a.EmployeeID != "" {
		return a.EmployeeID
	}
	return a.ProviderID
}

// Duration is the booked length, derived from the stored interval.
func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}
