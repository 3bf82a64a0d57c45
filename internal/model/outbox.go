package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Event types appended by the queue engine.
const (
	EventQueueCreate    = "QUEUE_CREATE"
	EventQueueCall      = "QUEUE_CALL"
	EventQueueComplete  = "QUEUE_COMPLETE"
	EventQueueCancel    = "QUEUE_CANCEL"
	EventSettingsUpdate = "SETTINGS_UPDATE"
)

// OutboxEvent is written in the same transaction as the mutation it
// describes and published to the notification channel by the outbox
// processor. PatientID scopes the event to one patient's channel; nil
// means queue-wide only.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	PatientID    *uuid.UUID      `db:"patient_id" json:"patient_id,omitempty"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
