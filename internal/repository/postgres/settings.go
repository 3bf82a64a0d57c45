package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smartqueue/smartqueue-api/internal/model"
	"github.com/smartqueue/smartqueue-api/internal/repository"
)

type settingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) repository.SettingsRepository {
	return &settingsRepository{db: db}
}

// Get returns the single settings row. A missing row falls back to
// defaults instead of failing so a fresh database still serves a queue.
func (r *settingsRepository) Get(ctx context.Context) (*model.Settings, error) {
	query := `
		SELECT clinic_name, average_consultation_time,
		       working_hours_start, working_hours_end, updated_at
		FROM settings LIMIT 1
	`
	var settings model.Settings
	if err := r.db.GetContext(ctx, &settings, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.Settings{
				ClinicName:              "SmartQueue",
				AverageConsultationTime: model.DefaultConsultationMinutes,
			}, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings, nil
}

func (r *settingsRepository) Update(ctx context.Context, settings *model.Settings) error {
	query := `
		UPDATE settings
		SET clinic_name = $1, average_consultation_time = $2,
		    working_hours_start = $3, working_hours_end = $4, updated_at = $5
	`
	settings.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		settings.ClinicName,
		settings.AverageConsultationTime,
		settings.WorkingHoursStart,
		settings.WorkingHoursEnd,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
