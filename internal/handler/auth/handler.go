package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartqueue/smartqueue-api/internal/handler"
	"github.com/smartqueue/smartqueue-api/internal/service/auth"
)

type Handler struct {
	service *auth.Service
}

func NewHandler(service *auth.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/session", h.OpenSession)
}

type openSessionRequest struct {
	PIN string `json:"pin" binding:"required,numeric,len=4"`
}

// OpenSession exchanges the shared clinic PIN for a session token.
func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("a 4-digit PIN is required"))
		return
	}

	session, err := h.service.OpenSession(c.Request.Context(), req.PIN)
	if err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid PIN"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(session))
}
