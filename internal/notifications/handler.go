package notifications

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/pkg/response"
)

// Handler handles notification HTTP endpoints.
type Handler struct {
	d *Dispatcher
}

// NewHandler creates a notifications handler.
func NewHandler(d *Dispatcher) *Handler {
	return &Handler{d: d}
}

// List handles GET /notifications.
func (h *Handler) List(c *gin.Context) {
	inbox, err := h.d.List(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, inbox)
}

// MarkRead handles POST /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	if err := h.d.MarkRead(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	if err := h.d.MarkAllRead(c.Request.Context(), middleware.Actor(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
