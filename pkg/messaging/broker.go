package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channel naming for queue change notifications. Subscribers must treat
// payloads as "something changed" signals and re-read authoritative state.
const (
	QueueChannel         = "queue.events"
	PatientChannelPrefix = "queue.patient."
)

// PatientChannel returns the notification channel scoped to one patient.
func PatientChannel(patientID string) string {
	return PatientChannelPrefix + patientID
}

// Event is the payload published for every queue or patient change.
type Event struct {
	Type      string `json:"type"`
	PatientID string `json:"patient_id,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
}
