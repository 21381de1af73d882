package members

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
)

// Handler handles member HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a members handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// MeResponse is the current identity.
type MeResponse struct {
	User         *models.Member       `json:"user"`
	Organization *models.Organization `json:"organization"`
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	response.OK(c, MeResponse{User: middleware.Actor(c), Organization: middleware.Organization(c)})
}

// List handles GET /members.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// UpdateMe handles PATCH /me.
func (h *Handler) UpdateMe(c *gin.Context) {
	var body ProfileInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.UpdateProfile(c.Request.Context(), middleware.Actor(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, m)
}

// Update handles PATCH /members/:id (admin only).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid member id")
		return
	}
	var body AdminInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.AdminUpdate(c.Request.Context(), middleware.Actor(c), id, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, m)
}

// Invite handles POST /members/invite (admin only).
func (h *Handler) Invite(c *gin.Context) {
	var body InviteInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.Invite(c.Request.Context(), middleware.Actor(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}
