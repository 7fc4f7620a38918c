package governance

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSourceLimiterAdmitsUpToCeiling(t *testing.T) {
	limiter := NewSourceLimiter(SourceLimiterConfig{Requests: 10, Window: time.Minute})

	for i := 0; i < 10; i++ {
		admitted, retryAfter := limiter.Admit("198.51.100.7")
		require.True(t, admitted, "request %d should be admitted", i+1)
		assert.Zero(t, retryAfter)
	}

	admitted, retryAfter := limiter.Admit("198.51.100.7")
	assert.False(t, admitted)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)
}

func TestSourceLimiterIsolatesAddresses(t *testing.T) {
	limiter := NewSourceLimiter(SourceLimiterConfig{Requests: 1, Window: time.Minute})

	admitted, _ := limiter.Admit("198.51.100.7")
	require.True(t, admitted)
	admitted, _ = limiter.Admit("198.51.100.7")
	require.False(t, admitted)

	admitted, _ = limiter.Admit("203.0.113.9")
	assert.True(t, admitted, "a different address starts its own window")
}

func TestSourceLimiterTrustedBypass(t *testing.T) {
	limiter := NewSourceLimiter(SourceLimiterConfig{
		Requests:         1,
		Window:           time.Minute,
		TrustedAddresses: []string{"127.0.0.1"},
	})

	for i := 0; i < 100; i++ {
		admitted, _ := limiter.Admit("127.0.0.1")
		require.True(t, admitted)
	}

	assert.True(t, limiter.Trusted("127.0.0.1"))
	assert.False(t, limiter.Trusted("127.0.0.2"))
	assert.Empty(t, limiter.Stats(), "trusted addresses never create window state")
}

func TestSourceLimiterWindowResets(t *testing.T) {
	now := time.Now()
	limiter := NewSourceLimiter(SourceLimiterConfig{Requests: 2, Window: time.Minute})
	limiter.now = func() time.Time { return now }

	admitted, _ := limiter.Admit("198.51.100.7")
	require.True(t, admitted)
	admitted, _ = limiter.Admit("198.51.100.7")
	require.True(t, admitted)
	admitted, _ = limiter.Admit("198.51.100.7")
	require.False(t, admitted)

	// Advancing past the window clears the count on next access.
	now = now.Add(time.Minute)
	admitted, _ = limiter.Admit("198.51.100.7")
	assert.True(t, admitted)
}

func TestSourceLimiterThrottledRequestsCount(t *testing.T) {
	now := time.Now()
	limiter := NewSourceLimiter(SourceLimiterConfig{Requests: 1, Window: time.Minute})
	limiter.now = func() time.Time { return now }

	limiter.Admit("198.51.100.7")
	limiter.Admit("198.51.100.7")
	limiter.Admit("198.51.100.7")

	stats := limiter.Stats()
	require.Contains(t, stats, "198.51.100.7")
	assert.Equal(t, 3, stats["198.51.100.7"].Count, "rejections still increment the window counter")
}

func TestSourceLimiterRetryAfterShrinksWithTime(t *testing.T) {
	now := time.Now()
	limiter := NewSourceLimiter(SourceLimiterConfig{Requests: 1, Window: time.Minute})
	limiter.now = func() time.Time { return now }

	limiter.Admit("198.51.100.7")

	_, first := limiter.Admit("198.51.100.7")
	assert.Equal(t, time.Minute, first)

	now = now.Add(40 * time.Second)
	_, second := limiter.Admit("198.51.100.7")
	assert.Equal(t, 20*time.Second, second)
}

func TestSourceLimiterDefaults(t *testing.T) {
	limiter := NewSourceLimiter(SourceLimiterConfig{})
	assert.Equal(t, 10, limiter.Ceiling())
}

func TestWriteRateLimitHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	reset := time.Unix(1700000000, 0)

	WriteRateLimitHeaders(rec, 10, 3, reset)

	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000000", rec.Header().Get("X-RateLimit-Reset"))
}

func TestSourceLimiterConcurrentAdmissions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ceiling := rapid.IntRange(1, 32).Draw(t, "ceiling")
		goroutines := rapid.IntRange(1, 8).Draw(t, "goroutines")
		perGoroutine := rapid.IntRange(1, 16).Draw(t, "perGoroutine")

		limiter := NewSourceLimiter(SourceLimiterConfig{Requests: ceiling, Window: time.Hour})

		var mu sync.Mutex
		admittedTotal := 0

		var wg sync.WaitGroup
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perGoroutine; i++ {
					if admitted, _ := limiter.Admit("198.51.100.7"); admitted {
						mu.Lock()
						admittedTotal++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		total := goroutines * perGoroutine
		expected := total
		if expected > ceiling {
			expected = ceiling
		}
		if admittedTotal != expected {
			t.Fatalf("admitted %d of %d requests, want %d", admittedTotal, total, expected)
		}
	})
}
