package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRegistry(t *testing.T) {
	r := NewPendingRegistry(0)
	first := &PendingSession{UserID: "u1", CreatedAt: time.Now()}
	second := &PendingSession{UserID: "u1", CreatedAt: time.Now()}

	r.Put(first)
	r.Put(second)
	got, ok := r.Get("u1")
	require.True(t, ok)
	assert.Same(t, second, got)

	// removing a superseded session keeps the newer one
	r.Remove("u1", first)
	_, ok = r.Get("u1")
	assert.True(t, ok)

	r.Remove("u1", second)
	_, ok = r.Get("u1")
	assert.False(t, ok)
}

func TestPendingRegistry_NoTTLNeverExpires(t *testing.T) {
	r := NewPendingRegistry(0)
	r.Put(&PendingSession{UserID: "u1", CreatedAt: time.Now().Add(-24 * 365 * time.Hour)})
	_, ok := r.Get("u1")
	assert.True(t, ok)
	assert.Zero(t, r.Prune())
}

func TestPendingRegistry_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewPendingRegistry(5 * time.Minute)
	r.now = func() time.Time { return now }

	r.Put(&PendingSession{UserID: "old", CreatedAt: now.Add(-6 * time.Minute)})
	r.Put(&PendingSession{UserID: "stale", CreatedAt: now.Add(-10 * time.Minute)})
	r.Put(&PendingSession{UserID: "fresh", CreatedAt: now.Add(-time.Minute)})

	_, ok := r.Get("old")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())

	assert.Equal(t, 1, r.Prune())
	assert.Equal(t, 1, r.Len())
	_, ok = r.Get("fresh")
	assert.True(t, ok)
}
