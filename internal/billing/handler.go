package billing

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
)

// Handler handles billing HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a billing handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// StatusRequest is the body for PATCH /billing/:id.
type StatusRequest struct {
	Status models.BillingStatus `json:"status" binding:"required"`
}

// PlanRequest is the body for PUT /organization/plan.
type PlanRequest struct {
	PlanType models.PlanType `json:"plan_type" binding:"required"`
}

// List handles GET /billing.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Record handles POST /billing.
func (h *Handler) Record(c *gin.Context) {
	var body RecordInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rec, err := h.svc.Record(c.Request.Context(), middleware.Actor(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// SetStatus handles PATCH /billing/:id.
func (h *Handler) SetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid billing id")
		return
	}
	var body StatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "status required")
		return
	}
	rec, err := h.svc.SetStatus(c.Request.Context(), middleware.Actor(c), id, body.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// ChangePlan handles PUT /organization/plan.
func (h *Handler) ChangePlan(c *gin.Context) {
	var body PlanRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "plan_type required")
		return
	}
	change, err := h.svc.ChangePlan(c.Request.Context(), middleware.Actor(c), middleware.Organization(c), body.PlanType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, change)
}
