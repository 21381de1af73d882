package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/identity"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
)

const (
	// ContextSession is the key for the request's *identity.Session.
	ContextSession = "session"
	// ContextMember is the key for the resolved *models.Member.
	ContextMember = "member"
	// ContextOrganization is the key for the resolved *models.Organization.
	ContextOrganization = "organization"
)

// Session establishes an identity session for the request and stores the
// resolved member and organization in the gin context. The session is closed
// when the request completes.
func Session(sessions *identity.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.TokenFromRequest(c)
		if token == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		sess := sessions.New()
		defer sess.Close()
		if err := sess.Establish(c.Request.Context(), token); err != nil {
			if errors.Is(err, identity.ErrNotSignedIn) {
				response.Unauthorized(c, "invalid or expired token")
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}
		member, org, _ := sess.CurrentIdentity()
		c.Set(ContextSession, sess)
		c.Set(ContextMember, member)
		c.Set(ContextOrganization, org)
		c.Next()
	}
}

// Actor returns the member resolved for the request.
func Actor(c *gin.Context) *models.Member {
	m, _ := c.MustGet(ContextMember).(*models.Member)
	return m
}

// Organization returns the organization resolved for the request.
func Organization(c *gin.Context) *models.Organization {
	o, _ := c.MustGet(ContextOrganization).(*models.Organization)
	return o
}

// OrganizationID returns the tenant id of the request.
func OrganizationID(c *gin.Context) uuid.UUID {
	return Organization(c).ID
}
