package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartqueue/smartqueue-api/internal/model"
	apperrors "github.com/smartqueue/smartqueue-api/pkg/errors"
	"github.com/smartqueue/smartqueue-api/pkg/logger"
	"github.com/smartqueue/smartqueue-api/pkg/messaging"
)

// QueueReader is the engine's read contract the synchronization layer
// re-derives state from.
type QueueReader interface {
	ViewerState(ctx context.Context, patientID uuid.UUID) (*model.ViewerState, error)
	Snapshot(ctx context.Context) ([]*model.BoardEntry, error)
}

// Service keeps viewers current: it subscribes to change notifications
// and performs a full authoritative re-read on every event. There is no
// diffing; notification payloads are treated as opaque change signals.
type Service struct {
	broker messaging.Broker
	reader QueueReader
	logger *logger.Logger
}

func NewService(broker messaging.Broker, reader QueueReader, logger *logger.Logger) *Service {
	return &Service{broker: broker, reader: reader, logger: logger}
}

// readGuard implements last-completed-read-wins: concurrent re-reads may
// finish in either order, and a read that started before the last
// rendered one is discarded as stale.
type readGuard struct {
	mu   sync.Mutex
	last time.Time
}

func (g *readGuard) commit(start time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if start.Before(g.last) {
		return false
	}
	g.last = start
	return true
}

// WatchPatient streams the viewer state for one patient. An initial state
// is emitted immediately; afterwards every notification on the patient's
// channel triggers a re-read. The subscription is released when ctx is
// cancelled.
func (s *Service) WatchPatient(ctx context.Context, patientID uuid.UUID) (<-chan *model.ViewerState, error) {
	events, err := s.broker.Subscribe(ctx, messaging.PatientChannel(patientID.String()))
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	out := make(chan *model.ViewerState, 1)
	guard := &readGuard{}

	reread := func() {
		start := time.Now()
		state, err := s.reader.ViewerState(ctx, patientID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error(err, "patient state re-read failed", "patient_id", patientID.String())
			}
			return
		}
		if !guard.commit(start) {
			return
		}
		push(out, state)
	}

	// out is never closed: a late re-read may still deliver after the
	// watcher loop ends. Consumers stop on their own ctx.
	go func() {
		reread()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				go reread()
			}
		}
	}()

	return out, nil
}

// WatchQueue streams the full board for the front-desk view, re-reading
// on every queue-wide notification.
func (s *Service) WatchQueue(ctx context.Context) (<-chan []*model.BoardEntry, error) {
	events, err := s.broker.Subscribe(ctx, messaging.QueueChannel)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	out := make(chan []*model.BoardEntry, 1)
	guard := &readGuard{}

	reread := func() {
		start := time.Now()
		board, err := s.reader.Snapshot(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error(err, "queue snapshot re-read failed")
			}
			return
		}
		if !guard.commit(start) {
			return
		}
		push(out, board)
	}

	go func() {
		reread()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				go reread()
			}
		}
	}()

	return out, nil
}

// push delivers the newest value, displacing an unconsumed older one. A
// slow viewer only ever misses intermediate states, never the latest.
func push[T any](out chan T, value T) {
	for {
		select {
		case out <- value:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
