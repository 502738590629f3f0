package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telecare-api/internal/service/audit"
)

// AuditClient records the caller's address and user agent on the request
// context so services can stamp audit entries with them.
func AuditClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithClient(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
