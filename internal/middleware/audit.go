// Package middleware holds gin middleware shared by the ops endpoints.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vrceventbot/vrceventbot/internal/logging"
)

// AuditMiddleware writes one API_ACCESS audit event per request. Requests
// answered with 4xx or 5xx are recorded as failures, so rejected API keys
// show up in the audit trail.
func AuditMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := logging.StatusSuccess
		if c.Writer.Status() >= http.StatusBadRequest {
			status = logging.StatusFailure
		}

		event := logging.NewAuditEvent(logging.APIAccess, c.Request.Method+" "+path, status).
			WithResource(path).
			WithDetail("status_code", c.Writer.Status()).
			WithDetail("client_ip", c.ClientIP()).
			WithDetail("latency_ms", time.Since(start).Milliseconds())
		if ua := c.Request.UserAgent(); ua != "" {
			event.WithDetail("user_agent", ua)
		}
		if status == logging.StatusFailure {
			event.WithError(http.StatusText(c.Writer.Status()))
		}

		logger.Audit(c.Request.Context(), event)
	}
}
