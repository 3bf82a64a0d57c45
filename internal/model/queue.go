package model

import (
	"github.com/google/uuid"
)

// QueueEntry is one ticket in the waiting queue. Positions of active
// entries are dense: exactly 1..N with no gaps, renumbered on every
// removal.
type QueueEntry struct {
	Base
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Position  int       `db:"position" json:"position"`
	// EstimatedWaitTime is minutes until the consultation. Zero also
	// marks the entry currently being served; patient status `called`
	// is the authoritative in-service signal.
	EstimatedWaitTime int `db:"estimated_wait_time" json:"estimated_wait_time"`
}

// InService reports whether the entry has been called in for
// consultation.
func (e *QueueEntry) InService(p *Patient) bool {
	return p != nil && p.Status == PatientStatusCalled
}

// BoardEntry is a queue entry joined with its patient for the front-desk
// board.
type BoardEntry struct {
	Entry   QueueEntry `json:"entry"`
	Patient Patient    `json:"patient"`
}

// ViewKind is the patient-facing presentation state, derived purely from
// the entry and patient.
type ViewKind string

const (
	ViewWaiting  ViewKind = "waiting"
	ViewYourTurn ViewKind = "your_turn"
	ViewThankYou ViewKind = "thank_you"
)

// ViewerState is the externally visible queue state for one patient.
type ViewerState struct {
	PatientID            uuid.UUID     `json:"patient_id"`
	PatientName          string        `json:"patient_name"`
	Position             *int          `json:"position,omitempty"`
	EstimatedWaitMinutes *int          `json:"estimated_wait_minutes,omitempty"`
	Status               PatientStatus `json:"status"`
	View                 ViewKind      `json:"view"`
}

// DeriveView maps patient + entry onto the presentation rules: terminal
// statuses thank the patient, a zero wait (or called status) means it is
// their turn, anything else shows position and estimate.
func DeriveView(p *Patient, e *QueueEntry) ViewerState {
	state := ViewerState{
		PatientID:   p.ID,
		PatientName: p.Name,
		Status:      p.Status,
	}

	if p.Status.Terminal() {
		state.View = ViewThankYou
		return state
	}

	if e == nil {
		state.View = ViewWaiting
		return state
	}

	pos := e.Position
	wait := e.EstimatedWaitTime
	state.Position = &pos
	state.EstimatedWaitMinutes = &wait

	if p.Status == PatientStatusCalled || e.EstimatedWaitTime == 0 {
		state.View = ViewYourTurn
		return state
	}

	state.View = ViewWaiting
	return state
}

type CompleteEntryRequest struct {
	PatientID string `json:"patient_id" binding:"required,uuid"`
}
