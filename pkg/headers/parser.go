// Package headers parses rate limit hints from VRChat API responses.
package headers

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimit is what a response says about the caller's request budget.
// Zero values mean the header was absent or unparseable.
type RateLimit struct {
	Limit      int64
	Remaining  int64
	Reset      time.Duration
	RetryAfter time.Duration
}

// Exhausted reports whether the response announced an empty budget.
func (r RateLimit) Exhausted() bool {
	return r.Limit > 0 && r.Remaining <= 0
}

// Wait returns how long to hold off before the next request. Retry-After wins
// over the reset window.
func (r RateLimit) Wait() time.Duration {
	if r.RetryAfter > 0 {
		return r.RetryAfter
	}
	if r.Exhausted() {
		return r.Reset
	}
	return 0
}

// Parse reads Retry-After and the X-RateLimit-* family from headers.
func Parse(headers http.Header, now time.Time) RateLimit {
	rl := RateLimit{
		Limit:     parseIntHeader(headers, "X-Ratelimit-Limit"),
		Remaining: parseIntHeader(headers, "X-Ratelimit-Remaining"),
		Reset:     time.Duration(parseIntHeader(headers, "X-Ratelimit-Reset")) * time.Second,
	}
	rl.RetryAfter, _ = RetryAfter(headers, now)
	return rl
}

// RetryAfter parses the Retry-After header in either of its forms: a number
// of seconds or an HTTP date. Dates in the past yield zero.
func RetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	val := strings.TrimSpace(headers.Get("Retry-After"))
	if val == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(val, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(val)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d.Round(time.Second), true
	}
	return 0, true
}

func parseIntHeader(headers http.Header, key string) int64 {
	val := headers.Get(key)
	if val == "" {
		return 0
	}

	// Handle duration format like "0s", "60s"
	if strings.HasSuffix(val, "s") {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0
		}
		return int64(d.Seconds())
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
