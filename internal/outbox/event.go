// Package outbox implements the transactional outbox: domain events are
// inserted in the same transaction as the state change they describe, and a
// background publisher drains them to Kafka.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TopicAppointmentCreated     = "appointments.created.v1"
	TopicAppointmentConfirmed   = "appointments.confirmed.v1"
	TopicAppointmentCancelled   = "appointments.cancelled.v1"
	TopicAppointmentRescheduled = "appointments.rescheduled.v1"
)

// Event is one pending row of the outbox table.
type Event struct {
	ID          string
	Topic       string
	Key         string
	Payload     []byte
	Traceparent string
	CreatedAt   time.Time
}

// New builds an event with a fresh id, marshalling the payload. Key is the
// Kafka partition key; using the appointment id keeps per-appointment order.
func New(topic, key string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:      uuid.NewString(),
		Topic:   topic,
		Key:     key,
		Payload: body,
	}, nil
}
