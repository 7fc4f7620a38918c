package governance

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// SourceLimiterConfig defines the per-source-address request window.
type SourceLimiterConfig struct {
	// Requests is the ceiling of admitted requests per window.
	Requests int
	// Window is the duration of one counting window.
	Window time.Duration
	// TrustedAddresses bypass the limiter entirely and never create window state.
	TrustedAddresses []string
}

// SourceLimiter throttles requests per source address using a fixed window.
// Expired windows are reset lazily on next access; no background sweep runs.
type SourceLimiter struct {
	mu      sync.RWMutex
	windows map[string]*requestWindow
	trusted map[string]struct{}
	ceiling int
	window  time.Duration

	now func() time.Time
}

// requestWindow tracks one address. Its own mutex serializes
// increment-and-compare so concurrent admissions on the same address never
// exceed the ceiling, without serializing unrelated addresses.
type requestWindow struct {
	mu    sync.Mutex
	count int
	start time.Time
}

// NewSourceLimiter creates a limiter with the provided configuration.
func NewSourceLimiter(cfg SourceLimiterConfig) *SourceLimiter {
	if cfg.Requests <= 0 {
		cfg.Requests = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	trusted := make(map[string]struct{}, len(cfg.TrustedAddresses))
	for _, addr := range cfg.TrustedAddresses {
		trusted[addr] = struct{}{}
	}

	return &SourceLimiter{
		windows: make(map[string]*requestWindow),
		trusted: trusted,
		ceiling: cfg.Requests,
		window:  cfg.Window,
		now:     time.Now,
	}
}

// Ceiling returns the configured per-window request ceiling.
func (sl *SourceLimiter) Ceiling() int { return sl.ceiling }

// Trusted reports whether the address bypasses rate limiting.
func (sl *SourceLimiter) Trusted(address string) bool {
	_, ok := sl.trusted[address]
	return ok
}

// Admit decides whether a request from the address may proceed. Throttled
// requests still count against the window; retryAfter is the remaining window
// time and is zero for admitted requests.
func (sl *SourceLimiter) Admit(address string) (admitted bool, retryAfter time.Duration) {
	if sl.Trusted(address) {
		return true, 0
	}

	w := sl.windowFor(address)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := sl.now()
	if now.Sub(w.start) >= sl.window {
		w.start = now
		w.count = 0
	}

	w.count++
	if w.count > sl.ceiling {
		return false, w.start.Add(sl.window).Sub(now)
	}
	return true, 0
}

func (sl *SourceLimiter) windowFor(address string) *requestWindow {
	sl.mu.RLock()
	w, ok := sl.windows[address]
	sl.mu.RUnlock()
	if ok {
		return w
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if w, ok := sl.windows[address]; ok {
		return w
	}
	w = &requestWindow{start: sl.now()}
	sl.windows[address] = w
	return w
}

// WindowStats exposes the current state of one address window.
type WindowStats struct {
	Ceiling     int    `json:"ceiling"`
	Count       int    `json:"count"`
	WindowStart string `json:"windowStart"`
}

// Stats returns current window statistics for all tracked addresses.
func (sl *SourceLimiter) Stats() map[string]WindowStats {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	stats := make(map[string]WindowStats, len(sl.windows))
	for address, w := range sl.windows {
		w.mu.Lock()
		stats[address] = WindowStats{
			Ceiling:     sl.ceiling,
			Count:       w.count,
			WindowStart: w.start.Format(time.RFC3339),
		}
		w.mu.Unlock()
	}
	return stats
}

// WriteRateLimitHeaders adds rate limit status headers to the response.
func WriteRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetTime time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
}
