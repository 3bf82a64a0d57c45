package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/smartqueue/smartqueue-api/internal/model"
	"github.com/smartqueue/smartqueue-api/internal/repository"
	apperrors "github.com/smartqueue/smartqueue-api/pkg/errors"
	"github.com/smartqueue/smartqueue-api/pkg/metrics"
	"github.com/smartqueue/smartqueue-api/pkg/validator"
)

// SettingsProvider supplies the average consultation time used for wait
// estimates.
type SettingsProvider interface {
	ConsultationMinutes(ctx context.Context) (int, error)
}

// QueueService is the ordering engine: it owns position assignment, wait
// estimation and retirement of queue entries. No other component writes
// positions.
type QueueService interface {
	Enroll(ctx context.Context, input EnrollInput) (*model.Patient, *model.QueueEntry, error)
	CallNext(ctx context.Context) (*model.QueueEntry, bool, error)
	Complete(ctx context.Context, entryID, patientID uuid.UUID) error
	Cancel(ctx context.Context, entryID, patientID uuid.UUID) error
	CurrentPosition(ctx context.Context, patientID uuid.UUID) (int, error)
	Snapshot(ctx context.Context) ([]*model.BoardEntry, error)
	ViewerState(ctx context.Context, patientID uuid.UUID) (*model.ViewerState, error)
}

type EnrollInput struct {
	Name  string
	Phone string
	// RequirePhone distinguishes patient self-registration (phone
	// mandatory) from a front-desk walk-in add.
	RequirePhone bool
}

type Service struct {
	repo     repository.QueueRepository
	settings SettingsProvider
	metrics  *metrics.Metrics
}

func NewService(repo repository.QueueRepository, settings SettingsProvider) *Service {
	return &Service{repo: repo, settings: settings}
}

// WithMetrics attaches operation counters and the queue depth gauge.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) countOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.QueueOperationError.WithLabelValues(op).Inc()
		return
	}
	s.metrics.QueueOperations.WithLabelValues(op).Inc()
}

func (s *Service) setDepth(depth int) {
	if s.metrics != nil {
		s.metrics.QueueDepth.Set(float64(depth))
	}
}

// Enroll creates the patient and its ticket atomically. The new entry
// takes position activeCount+1 with an estimate of
// (position-1) x averageConsultationTime, so the first patient starts at
// position 1 with no wait.
func (s *Service) Enroll(ctx context.Context, input EnrollInput) (*model.Patient, *model.QueueEntry, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, apperrors.Validation("patient name is required", nil)
	}

	phone := validator.NormalizePhone(input.Phone)
	if phone == "" && input.RequirePhone {
		return nil, nil, apperrors.Validation("phone number is required", nil)
	}
	if phone != "" && !validator.IsValidMobile(phone) {
		return nil, nil, apperrors.Validation("invalid phone number, use 06XXXXXXXX, 07XXXXXXXX or +212XXXXXXXXX", nil)
	}

	avg, err := s.settings.ConsultationMinutes(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load consultation time: %w", err)
	}

	patient := &model.Patient{
		Base:   model.Base{ID: uuid.New()},
		Name:   name,
		Status: model.PatientStatusWaiting,
	}
	if phone != "" {
		patient.Phone = &phone
	}

	entry := &model.QueueEntry{
		Base:      model.Base{ID: uuid.New()},
		PatientID: patient.ID,
	}

	err = s.repo.Atomic(ctx, func(store repository.QueueStore) error {
		count, err := store.CountEntries(ctx)
		if err != nil {
			return err
		}

		entry.Position = count + 1
		entry.EstimatedWaitTime = (entry.Position - 1) * avg

		if err := store.InsertPatient(ctx, patient); err != nil {
			return err
		}
		if err := store.InsertEntry(ctx, entry); err != nil {
			return err
		}
		return appendQueueEvent(ctx, store, model.EventQueueCreate, entry)
	})
	s.countOp("enroll", err)
	if err != nil {
		return nil, nil, err
	}
	s.setDepth(entry.Position)

	return patient, entry, nil
}

// CallNext marks the lowest-position entry as in service: wait drops to
// zero and the patient moves to `called`. The entry keeps its position
// and stays on the board until completed or cancelled. Returns false when
// the queue is empty; an empty queue is not an error.
func (s *Service) CallNext(ctx context.Context) (*model.QueueEntry, bool, error) {
	var called *model.QueueEntry

	err := s.repo.Atomic(ctx, func(store repository.QueueStore) error {
		entry, err := store.FirstEntry(ctx)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		patient, err := store.GetPatient(ctx, entry.PatientID)
		if err != nil {
			return err
		}

		// Re-calling the patient already in service is a no-op.
		if patient.Status != model.PatientStatusCalled {
			if !model.ValidTransition(patient.Status, model.PatientStatusCalled) {
				return apperrors.Conflict(fmt.Sprintf("patient is %s and cannot be called", patient.Status), nil)
			}
			if err := store.UpdatePatientStatus(ctx, patient.ID, model.PatientStatusCalled); err != nil {
				return err
			}
		}

		if entry.EstimatedWaitTime != 0 {
			entry.EstimatedWaitTime = 0
			if err := store.UpdateEntry(ctx, entry); err != nil {
				return err
			}
		}

		called = entry
		return appendQueueEvent(ctx, store, model.EventQueueCall, entry)
	})
	s.countOp("call_next", err)
	if err != nil {
		return nil, false, err
	}
	if called == nil {
		return nil, false, nil
	}
	return called, true, nil
}

// Complete retires the entry and marks the patient completed.
func (s *Service) Complete(ctx context.Context, entryID, patientID uuid.UUID) error {
	err := s.retire(ctx, entryID, patientID, model.PatientStatusCompleted, model.EventQueueComplete)
	s.countOp("complete", err)
	return err
}

// Cancel retires the entry and marks the patient cancelled.
func (s *Service) Cancel(ctx context.Context, entryID, patientID uuid.UUID) error {
	err := s.retire(ctx, entryID, patientID, model.PatientStatusCancelled, model.EventQueueCancel)
	s.countOp("cancel", err)
	return err
}

// retire removes one entry and compacts the queue: every entry behind it
// shifts down one position and gets its estimate recomputed as
// (position-1) x averageConsultationTime. A duplicate submission finds no
// entry and reports not-found, leaving positions untouched.
func (s *Service) retire(ctx context.Context, entryID, patientID uuid.UUID, status model.PatientStatus, eventType string) error {
	avg, err := s.settings.ConsultationMinutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load consultation time: %w", err)
	}

	return s.repo.Atomic(ctx, func(store repository.QueueStore) error {
		entry, err := store.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.PatientID != patientID {
			return apperrors.NotFound("queue entry", nil)
		}

		patient, err := store.GetPatient(ctx, entry.PatientID)
		if err != nil {
			return err
		}
		if !model.ValidTransition(patient.Status, status) {
			return apperrors.Conflict(fmt.Sprintf("patient is already %s", patient.Status), nil)
		}

		if err := store.UpdatePatientStatus(ctx, patient.ID, status); err != nil {
			return err
		}

		removed, err := store.DeleteEntry(ctx, entry.ID)
		if err != nil {
			return err
		}
		if !removed {
			return apperrors.NotFound("queue entry", nil)
		}

		entries, err := store.ListEntries(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Position <= entry.Position {
				continue
			}
			e.Position--
			e.EstimatedWaitTime = (e.Position - 1) * avg
			if err := store.UpdateEntry(ctx, e); err != nil {
				return err
			}
		}
		s.setDepth(len(entries))

		return appendQueueEvent(ctx, store, eventType, entry)
	})
}

// CurrentPosition is the read-only lookup used by the patient view.
func (s *Service) CurrentPosition(ctx context.Context, patientID uuid.UUID) (int, error) {
	entry, err := s.repo.GetEntryByPatient(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return entry.Position, nil
}

// Snapshot returns the ordered board with patient details for the front
// desk and cabinet views.
func (s *Service) Snapshot(ctx context.Context) ([]*model.BoardEntry, error) {
	entries, err := s.repo.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	board := make([]*model.BoardEntry, 0, len(entries))
	for _, entry := range entries {
		patient, err := s.repo.GetPatient(ctx, entry.PatientID)
		if err != nil {
			return nil, err
		}
		board = append(board, &model.BoardEntry{Entry: *entry, Patient: *patient})
	}
	return board, nil
}

// ViewerState derives the patient-facing state. Patients without an
// active entry fall back to their stored status (completed/cancelled get
// the thank-you view).
func (s *Service) ViewerState(ctx context.Context, patientID uuid.UUID) (*model.ViewerState, error) {
	patient, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	entry, err := s.repo.GetEntryByPatient(ctx, patientID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return nil, err
		}
		entry = nil
	}

	state := model.DeriveView(patient, entry)
	return &state, nil
}

func appendQueueEvent(ctx context.Context, store repository.QueueStore, eventType string, entry *model.QueueEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue event: %w", err)
	}
	patientID := entry.PatientID
	return store.AppendEvent(ctx, &model.OutboxEvent{
		EventType: eventType,
		PatientID: &patientID,
		Payload:   payload,
	})
}
