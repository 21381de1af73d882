package allowances

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
)

// Handler handles allowance HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an allowances handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /allowances.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /allowances/:position.
func (h *Handler) Get(c *gin.Context) {
	a, err := h.svc.Get(c.Request.Context(), middleware.Actor(c), models.Position(c.Param("position")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

// Upsert handles PUT /allowances/:position.
func (h *Handler) Upsert(c *gin.Context) {
	var body models.Rates
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.svc.Upsert(c.Request.Context(), middleware.Actor(c), models.Position(c.Param("position")), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

// Estimate handles GET /allowances/estimate?position=&region=&days=&nights=.
// Position defaults to the caller's own position.
func (h *Handler) Estimate(c *gin.Context) {
	actor := middleware.Actor(c)
	position := models.Position(c.Query("position"))
	if position == "" && actor.Position != nil {
		position = *actor.Position
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "0"))
	if err != nil {
		response.BadRequest(c, "days must be an integer")
		return
	}
	nights, err := strconv.Atoi(c.DefaultQuery("nights", "0"))
	if err != nil {
		response.BadRequest(c, "nights must be an integer")
		return
	}
	e, err := h.svc.Estimate(c.Request.Context(), actor, position, models.Region(c.Query("region")), days, nights)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}
