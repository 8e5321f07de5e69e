package discord

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UserRateLimiter keeps one token bucket per Discord user. A bucket holds
// perMinute tokens and refills at perMinute per minute.
type UserRateLimiter struct {
	perMinute int
	buckets   map[string]*rate.Limiter
	mu        sync.Mutex
	now       func() time.Time
}

// NewUserRateLimiter creates the limiter. perMinute <= 0 disables limiting.
func NewUserRateLimiter(perMinute int) *UserRateLimiter {
	return &UserRateLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]*rate.Limiter),
		now:       time.Now,
	}
}

// Allow spends one token from userID's bucket.
func (u *UserRateLimiter) Allow(userID string) bool {
	if u.perMinute <= 0 {
		return true
	}
	u.mu.Lock()
	b, ok := u.buckets[userID]
	if !ok {
		b = rate.NewLimiter(rate.Every(time.Minute/time.Duration(u.perMinute)), u.perMinute)
		u.buckets[userID] = b
	}
	u.mu.Unlock()
	return b.AllowN(u.now(), 1)
}

// Sweep forgets buckets that have refilled completely.
func (u *UserRateLimiter) Sweep() int {
	now := u.now()
	u.mu.Lock()
	defer u.mu.Unlock()
	removed := 0
	for id, b := range u.buckets {
		if b.TokensAt(now) >= float64(b.Burst()) {
			delete(u.buckets, id)
			removed++
		}
	}
	return removed
}

func (u *UserRateLimiter) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.buckets)
}
