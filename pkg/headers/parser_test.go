package headers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{"absent", "", 0, false},
		{"seconds", "30", 30 * time.Second, true},
		{"padded", " 5 ", 5 * time.Second, true},
		{"negative", "-1", 0, false},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second, true},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"garbage", "soon", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			got, ok := RetryAfter(h, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	now := time.Now()

	t.Run("budget headers", func(t *testing.T) {
		h := http.Header{
			"X-Ratelimit-Limit":     []string{"60"},
			"X-Ratelimit-Remaining": []string{"0"},
			"X-Ratelimit-Reset":     []string{"45s"},
		}
		rl := Parse(h, now)
		assert.EqualValues(t, 60, rl.Limit)
		assert.EqualValues(t, 0, rl.Remaining)
		assert.Equal(t, 45*time.Second, rl.Reset)
		assert.True(t, rl.Exhausted())
		assert.Equal(t, 45*time.Second, rl.Wait())
	})

	t.Run("retry after wins", func(t *testing.T) {
		h := http.Header{
			"X-Ratelimit-Limit":     []string{"60"},
			"X-Ratelimit-Remaining": []string{"0"},
			"X-Ratelimit-Reset":     []string{"45"},
			"Retry-After":           []string{"10"},
		}
		assert.Equal(t, 10*time.Second, Parse(h, now).Wait())
	})

	t.Run("nothing announced", func(t *testing.T) {
		rl := Parse(http.Header{}, now)
		assert.False(t, rl.Exhausted())
		assert.Zero(t, rl.Wait())
	})

	t.Run("budget left", func(t *testing.T) {
		h := http.Header{
			"X-Ratelimit-Limit":     []string{"60"},
			"X-Ratelimit-Remaining": []string{"12"},
			"X-Ratelimit-Reset":     []string{"45"},
		}
		assert.Zero(t, Parse(h, now).Wait())
	})
}
