package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
)

// RequireRole returns a middleware that allows only members holding one of roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		v, ok := c.Get(ContextMember)
		member, _ := v.(*models.Member)
		if !ok || member == nil {
			response.Unauthorized(c, "missing member context")
			c.Abort()
			return
		}
		if _, ok := allowed[member.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
