package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mtreat/mtreat-backend/pkg/response"
)

// AllowPrivateIP reports whether the caller comes from a loopback or private
// network address (10/8, 172.16/12, 192.168/16).
func AllowPrivateIP() AllowFunc {
	return func(c *gin.Context) bool {
		parsed := net.ParseIP(clientIP(c))
		if parsed == nil {
			return false
		}
		return parsed.IsLoopback() || parsed.IsPrivate()
	}
}

// RequireAllow rejects requests for which allow returns false with 403.
func RequireAllow(allow AllowFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allow != nil && !allow(c) {
			response.Abort(c, http.StatusForbidden, "forbidden", nil)
			return
		}
		c.Next()
	}
}
