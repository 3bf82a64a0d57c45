package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smartqueue/smartqueue-api/internal/handler"
	"github.com/smartqueue/smartqueue-api/internal/model"
	"github.com/smartqueue/smartqueue-api/internal/service/patient"
	"github.com/smartqueue/smartqueue-api/internal/service/queue"
)

// Handler is the patient-facing surface: self-registration and the
// queue-position lookup. It carries no authentication.
type Handler struct {
	patientService patient.PatientService
	queueService   queue.QueueService
}

func NewHandler(patientService patient.PatientService, queueService queue.QueueService) *Handler {
	return &Handler{
		patientService: patientService,
		queueService:   queueService,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.Register)
		patients.GET("/:id", h.Get)
		patients.GET("/:id/queue", h.QueueState)
		patients.GET("/:id/position", h.Position)
	}
}

// Register enrolls a patient from the public registration form. The
// phone is required on this path so the front desk can call back.
func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("name and a valid Moroccan mobile number are required"))
		return
	}

	p, entry, err := h.queueService.Enroll(c.Request.Context(), queue.EnrollInput{
		Name:         req.Name,
		Phone:        req.Phone,
		RequirePhone: true,
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

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	p, err := h.patientService.GetPatient(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

// QueueState returns the derived viewer state: position and estimate
// while waiting, your-turn once called, thank-you after the visit.
func (h *Handler) QueueState(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	state, err := h.queueService.ViewerState(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(state))
}

// Position is the lightweight lookup for pollers that only need the
// queue number. Patients without an active entry get a 404.
func (h *Handler) Position(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	position, err := h.queueService.CurrentPosition(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"position": position}))
}
