package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smartqueue/smartqueue-api/internal/handler"
	syncsvc "github.com/smartqueue/smartqueue-api/internal/service/sync"
	"github.com/smartqueue/smartqueue-api/pkg/logger"
)

const heartbeatInterval = 25 * time.Second

// Handler serves queue state over server-sent events. Each connection
// holds one watcher; disconnecting cancels the request context, which
// releases the broker subscription.
type Handler struct {
	syncService *syncsvc.Service
	logger      *logger.Logger
}

func NewHandler(syncService *syncsvc.Service, logger *logger.Logger) *Handler {
	return &Handler{syncService: syncService, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	stream := r.Group("/stream")
	{
		stream.GET("/queue", h.StreamQueue)
		stream.GET("/patients/:id", h.StreamPatient)
	}
}

// StreamPatient pushes the viewer state for one patient. The first
// event is the current state; later events follow queue changes.
func (h *Handler) StreamPatient(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	states, err := h.syncService.WatchPatient(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	serveEvents(c, h.logger, states)
}

// StreamQueue pushes the full board for the front-desk display.
func (h *Handler) StreamQueue(c *gin.Context) {
	boards, err := h.syncService.WatchQueue(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	serveEvents(c, h.logger, boards)
}

// serveEvents writes each value from the watcher channel as an SSE
// event until the client disconnects. The receive selects on the
// request context so the handler exits cleanly: watcher channels are
// never closed and must not be waited on unconditionally.
func serveEvents[T any](c *gin.Context, log *logger.Logger, values <-chan T) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			// Comment lines keep idle connections alive through proxies.
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			c.Writer.Flush()
		case v := <-values:
			payload, err := json.Marshal(v)
			if err != nil {
				log.Error(err, "failed to encode stream event")
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			c.Writer.Flush()
		}
	}
}
