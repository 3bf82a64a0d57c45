package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smartqueue/smartqueue-api/internal/model"
)

// QueueStore is the mutable queue surface. All methods may run inside a
// transaction opened by QueueRepository.Atomic; the queue engine is the
// only component allowed to assign positions.
type QueueStore interface {
	InsertPatient(ctx context.Context, patient *model.Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	UpdatePatientStatus(ctx context.Context, id uuid.UUID, status model.PatientStatus) error

	InsertEntry(ctx context.Context, entry *model.QueueEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
	GetEntryByPatient(ctx context.Context, patientID uuid.UUID) (*model.QueueEntry, error)
	// FirstEntry returns the entry with the lowest position, or nil when
	// the queue is empty.
	FirstEntry(ctx context.Context) (*model.QueueEntry, error)
	// ListEntries returns all entries ordered by ascending position.
	ListEntries(ctx context.Context) ([]*model.QueueEntry, error)
	UpdateEntry(ctx context.Context, entry *model.QueueEntry) error
	DeleteEntry(ctx context.Context, id uuid.UUID) (bool, error)
	CountEntries(ctx context.Context) (int, error)

	// AppendEvent records an outbox event in the same transaction as the
	// mutation it describes.
	AppendEvent(ctx context.Context, event *model.OutboxEvent) error
}

// QueueRepository serializes queue-mutating operations. Atomic runs fn in
// a transaction holding the queue lock so position renumbering is never
// interleaved.
type QueueRepository interface {
	QueueStore
	Atomic(ctx context.Context, fn func(QueueStore) error) error
}

type PatientRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
}

type SettingsRepository interface {
	Get(ctx context.Context) (*model.Settings, error)
	Update(ctx context.Context, settings *model.Settings) error
}

type OutboxRepository interface {
	GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
