package applications

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
	"github.com/ryohi-cloud/backend/pkg/storage"
)

// Handler handles application HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an applications handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateRequest is the body for POST /applications. Dates are YYYY-MM-DD or RFC 3339.
type CreateRequest struct {
	Type            models.ApplicationKind `json:"type" binding:"required"`
	Title           string                 `json:"title" binding:"required"`
	Purpose         *string                `json:"purpose"`
	EstimatedAmount *float64               `json:"estimated_amount"`
	ActualAmount    *float64               `json:"actual_amount"`
	StartDate       *string                `json:"start_date"`
	EndDate         *string                `json:"end_date"`
	Destination     *string                `json:"destination"`
	Details         models.Details         `json:"details"`
}

// UpdateRequest is the body for PATCH /applications/:id. An empty string
// clears purpose, destination and the dates.
type UpdateRequest struct {
	Title           *string         `json:"title"`
	Purpose         *string         `json:"purpose"`
	EstimatedAmount *float64        `json:"estimated_amount"`
	ActualAmount    *float64        `json:"actual_amount"`
	StartDate       *string         `json:"start_date"`
	EndDate         *string         `json:"end_date"`
	Destination     *string         `json:"destination"`
	Details         *models.Details `json:"details"`
}

// DecisionRequest is the body for POST /applications/:id/decision.
type DecisionRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Validation("parse date", "%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

// blank reports whether a field was sent as an empty string.
func blank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) == ""
}

func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid application id")
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /applications?status=&type=&applicant_id=&mine=true.
func (h *Handler) List(c *gin.Context) {
	actor := middleware.Actor(c)
	var f Filter
	if v := c.Query("status"); v != "" {
		st := models.ApplicationStatus(v)
		f.Status = &st
	}
	if v := c.Query("type"); v != "" {
		k := models.ApplicationKind(v)
		f.Type = &k
	}
	if v := c.Query("applicant_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid applicant_id")
			return
		}
		f.ApplicantID = &id
	}
	if c.Query("mine") == "true" {
		id := actor.ID
		f.ApplicantID = &id
	}
	list, err := h.svc.List(c.Request.Context(), actor, f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /applications/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	app, err := h.svc.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// Create handles POST /applications.
func (h *Handler) Create(c *gin.Context) {
	var body CreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := parseDate("end_date", body.EndDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	app, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), CreateInput{
		Type:            body.Type,
		Title:           body.Title,
		Purpose:         body.Purpose,
		EstimatedAmount: body.EstimatedAmount,
		ActualAmount:    body.ActualAmount,
		StartDate:       start,
		EndDate:         end,
		Destination:     body.Destination,
		Details:         body.Details,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Update handles PATCH /applications/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body UpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := parseDate("end_date", body.EndDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	app, err := h.svc.Update(c.Request.Context(), middleware.Actor(c), id, UpdateInput{
		Title:           body.Title,
		Purpose:         body.Purpose,
		EstimatedAmount: body.EstimatedAmount,
		ActualAmount:    body.ActualAmount,
		StartDate:       start,
		EndDate:         end,
		ClearStartDate:  blank(body.StartDate),
		ClearEndDate:    blank(body.EndDate),
		Destination:     body.Destination,
		Details:         body.Details,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// Delete handles DELETE /applications/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit handles POST /applications/:id/submit.
func (h *Handler) Submit(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	app, err := h.svc.Submit(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// Decide handles POST /applications/:id/decision.
func (h *Handler) Decide(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body DecisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "outcome required")
		return
	}
	outcome, err := ParseOutcome(body.Outcome)
	if err != nil {
		response.Error(c, err)
		return
	}
	app, err := h.svc.Decide(c.Request.Context(), middleware.Actor(c), id, outcome)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, app)
}

// UploadAttachment handles POST /applications/:id/attachments (multipart field "file").
func (h *Handler) UploadAttachment(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxAttachmentSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "cannot read file")
		return
	}
	defer f.Close()
	app, err := h.svc.AddAttachment(c.Request.Context(), middleware.Actor(c), id, Upload{
		FileName: fh.Filename,
		Size:     fh.Size,
		Body:     f,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// AttachmentURL handles GET /applications/:id/attachments/url?key=.
func (h *Handler) AttachmentURL(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	key := c.Query("key")
	if key == "" {
		response.BadRequest(c, "key required")
		return
	}
	url, err := h.svc.AttachmentURL(c.Request.Context(), middleware.Actor(c), id, key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"url": url})
}
