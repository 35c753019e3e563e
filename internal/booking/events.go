package booking

import (
	"time"

	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/outbox"
)

// AppointmentEvent is the payload published for every lifecycle change.
// Notification systems (email, WhatsApp) consume these downstream.
type AppointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	EmployeeID    string    `json:"employee_id,omitempty"`
	ClientID      string    `json:"client_id"`
	ServiceID     string    `json:"service_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
}

// NewAppointmentEvent builds the outbox event for one lifecycle change,
// keyed by appointment id so per-appointment ordering survives partitioning.
func NewAppointmentEvent(appt model.Appointment, topic string) (outbox.Event, error) {
	payload := AppointmentEvent{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		EmployeeID:    appt.EmployeeID,
		ClientID:      appt.ClientID,
		ServiceID:     appt.ServiceID,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Status:        string(appt.Status),
		CancelReason:  appt.CancelReason,
	}
	return outbox.New(topic, appt.ID, payload)
}

func appointmentEvents(appt model.Appointment, topic string) ([]outbox.Event, error) {
	ev, err := NewAppointmentEvent(appt, topic)
	if err != nil {
		return nil, err
	}
	return []outbox.Event{ev}, nil
}
