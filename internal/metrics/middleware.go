package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vrceventbot/vrceventbot/internal/logging"
)

// CorrelationHeader carries the request's correlation id in and out of the ops server.
const CorrelationHeader = "X-Correlation-ID"

// unmatchedEndpoint labels requests that hit no route, so scanners cannot
// grow the label set.
const unmatchedEndpoint = "unmatched"

// Middleware tags each ops request with a correlation id and records its
// latency and status.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationHeader)
		if id == "" {
			id = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(CorrelationHeader, id)

		start := time.Now()
		m.IncHTTPRequestsInFlight()
		c.Next()
		m.DecHTTPRequestsInFlight()

		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = unmatchedEndpoint
		}
		m.RecordRequestLatency(endpoint, c.Request.Method, status, time.Since(start).Seconds())
		m.RecordHTTPRequest(endpoint, c.Request.Method, status)

		if len(c.Errors) > 0 {
			logger.ErrorWithContext(ctx, "ops request failed",
				"endpoint", endpoint,
				"status", c.Writer.Status(),
				"error", c.Errors.String(),
			)
		}
	}
}
