package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrceventbot/vrceventbot/pkg/headers"
)

func TestIPRateLimiter(t *testing.T) {
	l := newIPRateLimiter(time.Hour, 2)
	assert.True(t, l.allow("1.1.1.1"))
	assert.True(t, l.allow("1.1.1.1"))
	assert.False(t, l.allow("1.1.1.1"))
	assert.True(t, l.allow("2.2.2.2"))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rateLimitMiddleware(newIPRateLimiter(time.Minute, 1)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	var last *httptest.ResponseRecorder
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)

	secs, err := strconv.Atoi(last.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, secs, 1)

	wait, ok := headers.RetryAfter(last.Header(), time.Now())
	require.True(t, ok)
	assert.Greater(t, wait, 58*time.Second)
}
