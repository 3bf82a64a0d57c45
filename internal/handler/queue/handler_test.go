package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartqueue/smartqueue-api/internal/middleware"
	"github.com/smartqueue/smartqueue-api/internal/model"
	"github.com/smartqueue/smartqueue-api/internal/service/queue"
	apperrors "github.com/smartqueue/smartqueue-api/pkg/errors"
	"github.com/smartqueue/smartqueue-api/pkg/validator"
)

type fakeQueueService struct {
	enrollFn   func(ctx context.Context, input queue.EnrollInput) (*model.Patient, *model.QueueEntry, error)
	callNextFn func(ctx context.Context) (*model.QueueEntry, bool, error)
	completeFn func(ctx context.Context, entryID, patientID uuid.UUID) error
	cancelFn   func(ctx context.Context, entryID, patientID uuid.UUID) error
	snapshotFn func(ctx context.Context) ([]*model.BoardEntry, error)
}

func (f *fakeQueueService) Enroll(ctx context.Context, input queue.EnrollInput) (*model.Patient, *model.QueueEntry, error) {
	return f.enrollFn(ctx, input)
}

func (f *fakeQueueService) CallNext(ctx context.Context) (*model.QueueEntry, bool, error) {
	return f.callNextFn(ctx)
}

func (f *fakeQueueService) Complete(ctx context.Context, entryID, patientID uuid.UUID) error {
	return f.completeFn(ctx, entryID, patientID)
}

func (f *fakeQueueService) Cancel(ctx context.Context, entryID, patientID uuid.UUID) error {
	return f.cancelFn(ctx, entryID, patientID)
}

func (f *fakeQueueService) CurrentPosition(ctx context.Context, patientID uuid.UUID) (int, error) {
	return 0, nil
}

func (f *fakeQueueService) Snapshot(ctx context.Context) ([]*model.BoardEntry, error) {
	return f.snapshotFn(ctx)
}

func (f *fakeQueueService) ViewerState(ctx context.Context, patientID uuid.UUID) (*model.ViewerState, error) {
	return nil, nil
}

func setupRouterWithHandler(h *Handler, sessionID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*playgroundvalidator.Validate); ok {
		_ = validator.Register(v)
	}
	engine := gin.New()
	engine.Use(middleware.ErrorHandler())
	engine.Use(func(c *gin.Context) {
		c.Set(middleware.ContextSessionID, sessionID)
		c.Next()
	})

	h.RegisterRoutes(engine.Group("/frontdesk"))
	return engine
}

func setupRouter(svc queue.QueueService, sessionID string) *gin.Engine {
	return setupRouterWithHandler(NewHandler(svc, time.Hour), sessionID)
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCallNextEmptyQueueIsSuccess(t *testing.T) {
	svc := &fakeQueueService{
		callNextFn: func(ctx context.Context) (*model.QueueEntry, bool, error) {
			return nil, false, nil
		},
	}
	engine := setupRouter(svc, "session-1")

	w := doJSON(t, engine, http.MethodPost, "/frontdesk/queue/call-next", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "queue is empty")
}

func TestCompleteAlreadyResolved(t *testing.T) {
	svc := &fakeQueueService{
		completeFn: func(ctx context.Context, entryID, patientID uuid.UUID) error {
			return apperrors.NotFound("queue entry", nil)
		},
	}
	engine := setupRouter(svc, "session-1")

	path := fmt.Sprintf("/frontdesk/queue/%s/complete", uuid.New())
	w := doJSON(t, engine, http.MethodPost, path, map[string]string{"patient_id": uuid.New().String()})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already resolved")
}

func TestCompleteInvalidEntryID(t *testing.T) {
	svc := &fakeQueueService{}
	engine := setupRouter(svc, "session-1")

	w := doJSON(t, engine, http.MethodPost, "/frontdesk/queue/not-a-uuid/complete",
		map[string]string{"patient_id": uuid.New().String()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConcurrentMutationSameSessionConflicts(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	svc := &fakeQueueService{
		callNextFn: func(ctx context.Context) (*model.QueueEntry, bool, error) {
			close(entered)
			<-release
			return nil, false, nil
		},
	}
	engine := setupRouter(svc, "session-1")

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- doJSON(t, engine, http.MethodPost, "/frontdesk/queue/call-next", nil)
	}()

	<-entered
	second := doJSON(t, engine, http.MethodPost, "/frontdesk/queue/call-next", nil)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "operation already in progress")

	close(release)
	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)
}

func TestConcurrentMutationDifferentSessionsAllowed(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	first := true

	svc := &fakeQueueService{
		callNextFn: func(ctx context.Context) (*model.QueueEntry, bool, error) {
			if first {
				first = false
				close(entered)
				<-release
			}
			return nil, false, nil
		},
	}

	// Both engines share one handler so the per-session locks are the
	// same; only the session id differs.
	h := NewHandler(svc, time.Hour)
	engineA := setupRouterWithHandler(h, "session-a")
	engineB := setupRouterWithHandler(h, "session-b")

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- doJSON(t, engineA, http.MethodPost, "/frontdesk/queue/call-next", nil)
	}()

	<-entered

	second := doJSON(t, engineB, http.MethodPost, "/frontdesk/queue/call-next", nil)
	assert.Equal(t, http.StatusOK, second.Code)

	close(release)
	<-done
}

func TestStaleSessionLocksArePruned(t *testing.T) {
	svc := &fakeQueueService{
		callNextFn: func(ctx context.Context) (*model.QueueEntry, bool, error) {
			return nil, false, nil
		},
	}
	h := NewHandler(svc, time.Hour)
	engine := setupRouterWithHandler(h, "session-new")

	expired := time.Now().Add(-2 * time.Hour).UnixNano()

	stale := &sessionLock{}
	stale.lastUsed.Store(expired)
	h.sessionLocks.Store("session-old", stale)

	// Expired by timestamp but still mid-mutation; the pruner must leave
	// it alone.
	held := &sessionLock{}
	held.lastUsed.Store(expired)
	held.mu.Lock()
	defer held.mu.Unlock()
	h.sessionLocks.Store("session-held", held)

	w := doJSON(t, engine, http.MethodPost, "/frontdesk/queue/call-next", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	_, ok := h.sessionLocks.Load("session-old")
	assert.False(t, ok, "expired session lock should be removed")
	_, ok = h.sessionLocks.Load("session-held")
	assert.True(t, ok, "in-flight session lock must survive the sweep")
	_, ok = h.sessionLocks.Load("session-new")
	assert.True(t, ok, "active session lock must survive the sweep")
}

func TestAddPatientValidatesBody(t *testing.T) {
	svc := &fakeQueueService{}
	engine := setupRouter(svc, "session-1")

	w := doJSON(t, engine, http.MethodPost, "/frontdesk/patients", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddPatientSuccess(t *testing.T) {
	patientID := uuid.New()
	svc := &fakeQueueService{
		enrollFn: func(ctx context.Context, input queue.EnrollInput) (*model.Patient, *model.QueueEntry, error) {
			assert.False(t, input.RequirePhone)
			return &model.Patient{Base: model.Base{ID: patientID}, Name: input.Name, Status: model.PatientStatusWaiting},
				&model.QueueEntry{Base: model.Base{ID: uuid.New()}, PatientID: patientID, Position: 1}, nil
		},
	}
	engine := setupRouter(svc, "session-1")

	w := doJSON(t, engine, http.MethodPost, "/frontdesk/patients", map[string]string{"name": "Walk In"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBoardReturnsSnapshot(t *testing.T) {
	svc := &fakeQueueService{
		snapshotFn: func(ctx context.Context) ([]*model.BoardEntry, error) {
			return []*model.BoardEntry{
				{Entry: model.QueueEntry{Position: 1}, Patient: model.Patient{Name: "A"}},
			}, nil
		},
	}
	engine := setupRouter(svc, "session-1")

	w := doJSON(t, engine, http.MethodGet, "/frontdesk/queue", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"A"`)
}
