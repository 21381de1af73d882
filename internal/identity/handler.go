package identity

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email            string           `json:"email" binding:"required,email"`
	Password         string           `json:"password" binding:"required,min=6"`
	FullName         string           `json:"full_name" binding:"required"`
	OrganizationName string           `json:"organization_name" binding:"required"`
	Department       *string          `json:"department"`
	Position         *models.Position `json:"position"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AcceptInvitationRequest is the body for POST /auth/accept-invitation.
type AcceptInvitationRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	creds     *CredentialService
	resolver  *Resolver
	registrar *Registrar
	logger    *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(creds *CredentialService, resolver *Resolver, registrar *Registrar, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{creds: creds, resolver: resolver, registrar: registrar, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.registrar.Register(c.Request.Context(), RegisterInput{
		Email:            req.Email,
		Password:         req.Password,
		FullName:         req.FullName,
		OrganizationName: req.OrganizationName,
		Department:       req.Department,
		Position:         req.Position,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	token, err := h.creds.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		if err == ErrInvalidCredentials {
			response.Unauthorized(c, "invalid email or password")
			return
		}
		response.Error(c, err)
		return
	}
	member, org, err := h.resolver.Resolve(ctx, token.Claims.CredentialID)
	if err != nil {
		if serr := h.creds.SignOut(ctx, token.Value); serr != nil {
			h.logger.Warn("revoke unresolved token", zap.Error(serr))
		}
		response.Error(c, err)
		return
	}
	response.OK(c, Registration{Token: token.Value, Member: member, Organization: org})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	token := TokenFromRequest(c)
	if token == "" {
		response.Unauthorized(c, "missing authorization header")
		return
	}
	if err := h.creds.SignOut(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AcceptInvitation handles POST /auth/accept-invitation.
func (h *Handler) AcceptInvitation(c *gin.Context) {
	var req AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.registrar.AcceptInvitation(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// TokenFromRequest returns the bearer token of the Authorization header, or
// the token query parameter used by websocket clients.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

