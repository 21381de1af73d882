package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origins is a parsed CORS allow-list. Empty or "*" allows every origin.
type Origins struct {
	any     bool
	allowed map[string]bool
}

// ParseOrigins parses a comma-separated list such as
// "http://localhost:5173,https://app.ryohi.example".
func ParseOrigins(s string) Origins {
	o := Origins{allowed: make(map[string]bool)}
	for _, v := range strings.Split(strings.TrimSpace(s), ",") {
		v = strings.TrimSuffix(strings.TrimSpace(v), "/")
		if v == "*" {
			o.any = true
		} else if v != "" {
			o.allowed[v] = true
		}
	}
	if len(o.allowed) == 0 {
		o.any = true
	}
	return o
}

// Allow returns the value for Access-Control-Allow-Origin, or "" when origin
// is not allowed.
func (o Origins) Allow(origin string) string {
	if o.any {
		return "*"
	}
	if origin != "" && o.allowed[origin] {
		return origin
	}
	return ""
}

// CheckOrigin is a websocket.Upgrader CheckOrigin for the same allow-list.
// Requests without an Origin header (non-browser clients) pass.
func (o Origins) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || o.Allow(origin) != ""
}

// CORS sets cross-origin headers for allowed origins and answers preflights.
func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := ParseOrigins(allowedOrigins)
	return func(c *gin.Context) {
		if allow := origins.Allow(c.GetHeader("Origin")); allow != "" {
			c.Header("Access-Control-Allow-Origin", allow)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
			if allow != "*" {
				c.Header("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
