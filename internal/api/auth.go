package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vrceventbot/vrceventbot/internal/logging"
)

// DefaultAPIKeyHeader is the header carrying the ops API key.
const DefaultAPIKeyHeader = "X-API-Key"

// ErrorResponse is the JSON body of every ops API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// APIKeyAuth guards the ops routes that expose bot state. With no keys
// configured every request passes, which is only sensible on loopback.
func APIKeyAuth(apiKeys []string, headerName string, logger *logging.Logger) gin.HandlerFunc {
	if headerName == "" {
		headerName = DefaultAPIKeyHeader
	}
	if len(apiKeys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	keys := make([][]byte, len(apiKeys))
	for i, k := range apiKeys {
		keys[i] = []byte(k)
	}

	reject := func(c *gin.Context, reason, message string) {
		logger.WarnWithContext(c.Request.Context(), "ops api key rejected",
			"reason", reason,
			"client_ip", c.ClientIP(),
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: message,
			Code:    http.StatusUnauthorized,
		})
	}

	return func(c *gin.Context) {
		presented := c.GetHeader(headerName)
		if presented == "" {
			reject(c, "missing", "API key is required in the '"+headerName+"' header")
			return
		}
		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(presented), key) == 1 {
				c.Next()
				return
			}
		}
		reject(c, "invalid", "Invalid API key")
	}
}
