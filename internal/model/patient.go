package model

import (
	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusWaiting   PatientStatus = "waiting"
	PatientStatusCalled    PatientStatus = "called"
	PatientStatusCompleted PatientStatus = "completed"
	PatientStatusCancelled PatientStatus = "cancelled"
)

// statusTransitions lists the allowed next statuses. completed and
// cancelled are terminal.
var statusTransitions = map[PatientStatus][]PatientStatus{
	PatientStatusWaiting: {PatientStatusCalled, PatientStatusCompleted, PatientStatusCancelled},
	PatientStatusCalled:  {PatientStatusCompleted, PatientStatusCancelled},
}

// ValidTransition reports whether a patient may move from one status to
// another.
func ValidTransition(from, to PatientStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the patient's visit.
func (s PatientStatus) Terminal() bool {
	return s == PatientStatusCompleted || s == PatientStatusCancelled
}

type Patient struct {
	Base
	Name   string        `db:"name" json:"name"`
	Phone  *string       `db:"phone" json:"phone,omitempty"`
	Status PatientStatus `db:"status" json:"status"`
}

// RegisterPatientRequest is the patient self-registration payload. The
// phone is mandatory here so the front desk can reach the patient.
type RegisterPatientRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required,phone_ma"`
}

// AddPatientRequest is the front-desk variant; walk-ins may not leave a
// number.
type AddPatientRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"omitempty,phone_ma"`
}

type PatientFilters struct {
	Status PatientStatus
	IDs    []uuid.UUID
}
