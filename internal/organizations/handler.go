package organizations

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
)

// Store is the organization persistence the handler needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (*models.Organization, error)
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	store Store
}

// NewHandler creates an organizations handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RenameRequest is the body for PATCH /organization.
type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Get handles GET /organization. Returns the caller's organization.
func (h *Handler) Get(c *gin.Context) {
	org, err := h.store.GetByID(c.Request.Context(), middleware.OrganizationID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// Rename handles PATCH /organization (admin only).
func (h *Handler) Rename(c *gin.Context) {
	var body RenameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name required")
		return
	}
	name := strings.TrimSpace(body.Name)
	if n := utf8.RuneCountInString(name); n < 1 || n > 255 {
		response.Error(c, apperr.Validation("rename organization", "name must be 1-255 characters"))
		return
	}
	org, err := h.store.Rename(c.Request.Context(), middleware.OrganizationID(c), name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}
