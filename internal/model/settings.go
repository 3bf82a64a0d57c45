package model

import "time"

// Settings is the single clinic configuration row. The queue engine only
// reads AverageConsultationTime; everything else feeds the UI.
type Settings struct {
	ClinicName              string    `db:"clinic_name" json:"clinic_name"`
	AverageConsultationTime int       `db:"average_consultation_time" json:"average_consultation_time"`
	WorkingHoursStart       string    `db:"working_hours_start" json:"working_hours_start"`
	WorkingHoursEnd         string    `db:"working_hours_end" json:"working_hours_end"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultConsultationMinutes is used when no settings row exists yet.
const DefaultConsultationMinutes = 15
