package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP for the ops endpoints.
type IPRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   time.Duration
	burst   int
}

// newIPRateLimiter refills one token per every, up to burst.
func newIPRateLimiter(every time.Duration, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		buckets: make(map[string]*rate.Limiter),
		every:   every,
		burst:   burst,
	}
}

func (l *IPRateLimiter) bucket(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[ip]
	if !ok {
		b = rate.NewLimiter(rate.Every(l.every), l.burst)
		l.buckets[ip] = b
	}
	return b
}

func (l *IPRateLimiter) allow(ip string) bool {
	return l.bucket(ip).Allow()
}

// retryAfter is the whole number of seconds until ip earns its next token.
func (l *IPRateLimiter) retryAfter(ip string) int {
	r := l.bucket(ip).Reserve()
	defer r.Cancel()
	return int(math.Ceil(r.Delay().Seconds()))
}

func rateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.allow(ip) {
			c.Header("Retry-After", strconv.Itoa(limiter.retryAfter(ip)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many requests. Please try again later.",
				Code:    http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}
