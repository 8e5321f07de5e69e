package vrchat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrceventbot/vrceventbot/internal/provider"
)

func statusErr(status int) error {
	return &provider.Error{Op: "test", Kind: provider.KindStatus, Status: status}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		require.True(t, b.allow())
		b.record(statusErr(http.StatusBadGateway))
	}
	assert.Equal(t, BreakerClosed, b.current())

	require.True(t, b.allow())
	b.record(&provider.Error{Op: "test", Kind: provider.KindTransport, Err: errors.New("refused")})
	assert.Equal(t, BreakerOpen, b.current())

	assert.False(t, b.allow())
	stats := b.stats()
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Transitions)
}

func TestBreaker_IgnoresNormalRejections(t *testing.T) {
	b := newBreaker(2, time.Minute)

	for _, err := range []error{
		&provider.Error{Op: "login", Kind: provider.KindUnauthorized, Status: http.StatusUnauthorized},
		statusErr(http.StatusBadRequest),
		statusErr(http.StatusNotFound),
		&provider.Error{Op: "group", Kind: provider.KindDecode},
		nil,
	} {
		require.True(t, b.allow())
		b.record(err)
	}
	assert.Equal(t, BreakerClosed, b.current())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newBreaker(2, time.Minute)

	b.record(statusErr(http.StatusTooManyRequests))
	b.record(nil)
	b.record(statusErr(http.StatusTooManyRequests))
	assert.Equal(t, BreakerClosed, b.current())

	b.record(statusErr(http.StatusServiceUnavailable))
	assert.Equal(t, BreakerOpen, b.current())
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Now()
	b := newBreaker(1, 10*time.Second)
	b.now = func() time.Time { return now }

	b.record(statusErr(http.StatusInternalServerError))
	require.Equal(t, BreakerOpen, b.current())
	assert.False(t, b.allow())

	now = now.Add(11 * time.Second)
	require.True(t, b.allow(), "one trial call after the cooldown")
	assert.Equal(t, BreakerHalfOpen, b.current())
	assert.False(t, b.allow(), "only one trial call at a time")

	b.record(statusErr(http.StatusInternalServerError))
	assert.Equal(t, BreakerOpen, b.current(), "a failed trial call reopens")

	now = now.Add(11 * time.Second)
	require.True(t, b.allow())
	b.record(nil)
	assert.Equal(t, BreakerClosed, b.current())
	assert.True(t, b.allow())
}

func TestBreaker_ReleaseReturnsTrialSlot(t *testing.T) {
	now := time.Now()
	b := newBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	b.record(statusErr(http.StatusBadGateway))
	now = now.Add(2 * time.Second)
	require.True(t, b.allow())
	b.release()
	assert.True(t, b.allow())
}

func TestClientBreaker_StopsCallingDuringOutage(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(
		WithBaseURL(srv.URL+"/api/1"),
		WithTransport(srv.Client().Transport),
		WithRateLimit(1000, 1000),
		WithBreaker(2, time.Hour),
	)
	s := c.ResumeSession("authTok", "")

	for i := 0; i < 2; i++ {
		_, err := s.CurrentUser(context.Background())
		pe, ok := provider.AsError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusServiceUnavailable, pe.Status)
	}

	_, err := s.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, "open", c.BreakerStats().State)
}

func TestClientBreaker_Disabled(t *testing.T) {
	c := NewClient(WithBreaker(0, time.Second))
	assert.Equal(t, BreakerStats{}, c.BreakerStats())
}
