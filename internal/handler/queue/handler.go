package queue

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smartqueue/smartqueue-api/internal/handler"
	"github.com/smartqueue/smartqueue-api/internal/middleware"
	"github.com/smartqueue/smartqueue-api/internal/model"
	"github.com/smartqueue/smartqueue-api/internal/service/queue"
	apperrors "github.com/smartqueue/smartqueue-api/pkg/errors"
)

const lockPruneInterval = time.Minute

// sessionLock is the per-session mutation lock. lastUsed (unix nanos)
// tells the pruner when the session token must have expired.
type sessionLock struct {
	mu       sync.Mutex
	lastUsed atomic.Int64
}

// Handler is the front-desk control surface. Each operator session may
// have at most one mutation in flight; a concurrent second submission
// gets a 409 instead of queueing up behind the first.
type Handler struct {
	queueService queue.QueueService
	sessionTTL   time.Duration
	sessionLocks sync.Map // session id -> *sessionLock
	lastPrune    atomic.Int64
}

func NewHandler(queueService queue.QueueService, sessionTTL time.Duration) *Handler {
	return &Handler{queueService: queueService, sessionTTL: sessionTTL}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/patients", h.AddPatient)
	q := r.Group("/queue")
	{
		q.GET("", h.Board)
		q.POST("/call-next", h.CallNext)
		q.POST("/:entryID/complete", h.Complete)
		q.POST("/:entryID/cancel", h.Cancel)
	}
}

// acquireSession takes the per-session mutation lock. The returned
// release func is nil when another mutation from the same session is
// still running.
func (h *Handler) acquireSession(c *gin.Context) func() {
	sessionID := c.GetString(middleware.ContextSessionID)
	v, _ := h.sessionLocks.LoadOrStore(sessionID, &sessionLock{})
	lock := v.(*sessionLock)
	if !lock.mu.TryLock() {
		return nil
	}
	lock.lastUsed.Store(time.Now().UnixNano())
	h.pruneStaleLocks()
	return lock.mu.Unlock
}

// pruneStaleLocks drops lock entries whose session token has expired, so
// the map does not grow for the lifetime of the process. At most one
// caller sweeps per lockPruneInterval; idle locks held by an in-flight
// mutation survive because TryLock fails on them.
func (h *Handler) pruneStaleLocks() {
	now := time.Now().UnixNano()
	last := h.lastPrune.Load()
	if now-last < int64(lockPruneInterval) || !h.lastPrune.CompareAndSwap(last, now) {
		return
	}

	cutoff := now - int64(h.sessionTTL)
	h.sessionLocks.Range(func(key, value interface{}) bool {
		lock := value.(*sessionLock)
		if lock.lastUsed.Load() >= cutoff {
			return true
		}
		if lock.mu.TryLock() {
			// Re-check under the lock: the entry may have been touched
			// between the load and the TryLock.
			if lock.lastUsed.Load() < cutoff {
				h.sessionLocks.Delete(key)
			}
			lock.mu.Unlock()
		}
		return true
	})
}

// AddPatient enrolls a walk-in. Unlike self-registration the phone is
// optional here.
func (h *Handler) AddPatient(c *gin.Context) {
	release := h.acquireSession(c)
	if release == nil {
		c.JSON(http.StatusConflict, handler.NewErrorResponse("operation already in progress"))
		return
	}
	defer release()

	var req model.AddPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("name is required; phone must be a valid Moroccan mobile number when given"))
		return
	}

	p, entry, err := h.queueService.Enroll(c.Request.Context(), queue.EnrollInput{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{
		"patient": p,
		"entry":   entry,
	}))
}

// CallNext moves the first patient into service. An empty queue is a
// normal outcome, not an error.
func (h *Handler) CallNext(c *gin.Context) {
	release := h.acquireSession(c)
	if release == nil {
		c.JSON(http.StatusConflict, handler.NewErrorResponse("operation already in progress"))
		return
	}
	defer release()

	entry, ok, err := h.queueService.CallNext(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, &handler.Response{Status: "success", Message: "queue is empty"})
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) Complete(c *gin.Context) {
	h.retire(c, h.queueService.Complete)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.retire(c, h.queueService.Cancel)
}

// retire handles complete and cancel. A not-found entry means someone
// else already resolved it, which the desk treats as success.
func (h *Handler) retire(c *gin.Context, op func(ctx context.Context, entryID, patientID uuid.UUID) error) {
	release := h.acquireSession(c)
	if release == nil {
		c.JSON(http.StatusConflict, handler.NewErrorResponse("operation already in progress"))
		return
	}
	defer release()

	entryID, err := uuid.Parse(c.Param("entryID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid entry ID"))
		return
	}

	var req model.CompleteEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("patient_id is required"))
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	if err := op(c.Request.Context(), entryID, patientID); err != nil {
		if apperrors.IsNotFound(err) {
			c.JSON(http.StatusOK, &handler.Response{Status: "success", Message: "entry already resolved"})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, &handler.Response{Status: "success"})
}

// Board returns the ordered queue with patient details.
func (h *Handler) Board(c *gin.Context) {
	board, err := h.queueService.Snapshot(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(board))
}
