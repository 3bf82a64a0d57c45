package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartqueue/smartqueue-api/internal/handler"
	"github.com/smartqueue/smartqueue-api/internal/service/settings"
)

type Handler struct {
	service *settings.Service
}

func NewHandler(service *settings.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/settings", h.Get)
	r.PUT("/settings", h.Update)
}

func (h *Handler) Get(c *gin.Context) {
	s, err := h.service.Get(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(s))
}

type updateSettingsRequest struct {
	ClinicName              string `json:"clinic_name" binding:"required"`
	AverageConsultationTime int    `json:"average_consultation_time" binding:"required,min=1,max=240"`
	WorkingHoursStart       string `json:"working_hours_start" binding:"omitempty"`
	WorkingHoursEnd         string `json:"working_hours_end" binding:"omitempty"`
}

// Update changes the clinic settings. New wait estimates pick up the
// consultation time on the next queue mutation; existing estimates are
// not rewritten retroactively.
func (h *Handler) Update(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid settings payload"))
		return
	}

	current, err := h.service.Get(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	// Copy before mutating so a failed update never dirties the cache.
	s := *current
	s.ClinicName = req.ClinicName
	s.AverageConsultationTime = req.AverageConsultationTime
	if req.WorkingHoursStart != "" {
		s.WorkingHoursStart = req.WorkingHoursStart
	}
	if req.WorkingHoursEnd != "" {
		s.WorkingHoursEnd = req.WorkingHoursEnd
	}

	if err := h.service.Update(c.Request.Context(), &s); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(&s))
}
