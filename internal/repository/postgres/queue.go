package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/smartqueue/smartqueue-api/internal/model"
	"github.com/smartqueue/smartqueue-api/internal/repository"
	apperrors "github.com/smartqueue/smartqueue-api/pkg/errors"
)

// queueLockKey is the advisory lock taken by Atomic. There is a single
// clinic queue, so one key serializes all renumbering mutations.
const queueLockKey = 4217

const uniqueViolation = "23505"

// queueStore implements repository.QueueStore over either the pooled
// connection or an open transaction.
type queueStore struct {
	ext sqlx.ExtContext
}

type queueRepository struct {
	queueStore
	db *sqlx.DB
}

func NewQueueRepository(db *sqlx.DB) repository.QueueRepository {
	return &queueRepository{
		queueStore: queueStore{ext: db},
		db:         db,
	}
}

// Atomic runs fn inside a transaction holding the queue advisory lock.
// Every position-renumbering operation goes through here, which is what
// keeps active positions dense under concurrent front-desk actions.
func (r *queueRepository) Atomic(ctx context.Context, fn func(repository.QueueStore) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, queueLockKey); err != nil {
		tx.Rollback()
		return apperrors.StoreUnavailable(err)
	}

	if err := fn(&queueStore{ext: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

func (s *queueStore) InsertPatient(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (id, name, phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = patient.CreatedAt

	_, err := s.ext.ExecContext(ctx, query,
		patient.ID,
		patient.Name,
		patient.Phone,
		patient.Status,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (s *queueStore) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT * FROM patients WHERE id = $1`
	var patient model.Patient
	if err := sqlx.GetContext(ctx, s.ext, &patient, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (s *queueStore) UpdatePatientStatus(ctx context.Context, id uuid.UUID, status model.PatientStatus) error {
	query := `UPDATE patients SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := s.ext.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update patient status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("patient", nil)
	}
	return nil
}

func (s *queueStore) InsertEntry(ctx context.Context, entry *model.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, patient_id, position, estimated_wait_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt

	_, err := s.ext.ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		entry.Position,
		entry.EstimatedWaitTime,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return apperrors.Conflict("patient already has an active queue entry", err)
		}
		return fmt.Errorf("failed to create queue entry: %w", err)
	}
	return nil
}

func (s *queueStore) GetEntry(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	query := `SELECT * FROM queue_entries WHERE id = $1`
	var entry model.QueueEntry
	if err := sqlx.GetContext(ctx, s.ext, &entry, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("queue entry", err)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

func (s *queueStore) GetEntryByPatient(ctx context.Context, patientID uuid.UUID) (*model.QueueEntry, error) {
	query := `SELECT * FROM queue_entries WHERE patient_id = $1`
	var entry model.QueueEntry
	if err := sqlx.GetContext(ctx, s.ext, &entry, query, patientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("queue entry", err)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

func (s *queueStore) FirstEntry(ctx context.Context) (*model.QueueEntry, error) {
	query := `SELECT * FROM queue_entries ORDER BY position ASC LIMIT 1`
	var entry model.QueueEntry
	if err := sqlx.GetContext(ctx, s.ext, &entry, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get first queue entry: %w", err)
	}
	return &entry, nil
}

func (s *queueStore) ListEntries(ctx context.Context) ([]*model.QueueEntry, error) {
	query := `SELECT * FROM queue_entries ORDER BY position ASC`
	var entries []*model.QueueEntry
	if err := sqlx.SelectContext(ctx, s.ext, &entries, query); err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	return entries, nil
}

func (s *queueStore) UpdateEntry(ctx context.Context, entry *model.QueueEntry) error {
	query := `
		UPDATE queue_entries
		SET position = $1, estimated_wait_time = $2, updated_at = $3
		WHERE id = $4
	`
	entry.UpdatedAt = time.Now()
	res, err := s.ext.ExecContext(ctx, query, entry.Position, entry.EstimatedWaitTime, entry.UpdatedAt, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to update queue entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("queue entry", nil)
	}
	return nil
}

func (s *queueStore) DeleteEntry(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `DELETE FROM queue_entries WHERE id = $1`
	res, err := s.ext.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete queue entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *queueStore) CountEntries(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM queue_entries`
	var count int
	if err := sqlx.GetContext(ctx, s.ext, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

func (s *queueStore) AppendEvent(ctx context.Context, event *model.OutboxEvent) error {
	if event.Payload == nil {
		event.Payload = []byte(`{}`)
	}

	query := `
		INSERT INTO outbox_events (id, event_type, patient_id, payload, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt

	_, err := s.ext.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.PatientID,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}
	return nil
}
