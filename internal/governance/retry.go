package governance

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"
)

// RetryConfig defines retry behavior for upstream requests.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int
	// BackoffBase is the base delay; the effective delay doubles per attempt.
	BackoffBase time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BackoffBase: time.Second,
		MaxBackoff:  time.Minute,
	}
}

// RetryPolicy computes backoff delays for upstream retry loops.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy with the given configuration.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = time.Minute
	}
	return &RetryPolicy{config: config}
}

// MaxRetries returns the configured retry ceiling.
func (rp *RetryPolicy) MaxRetries() int { return rp.config.MaxRetries }

// Backoff returns the delay before retrying after a transient fault:
// base × 2^attempt, capped at MaxBackoff.
func (rp *RetryPolicy) Backoff(attempt int) time.Duration {
	return rp.scale(rp.config.BackoffBase, attempt)
}

// RateLimitDelay returns the delay after a provider rate-limit signal. The
// provider's retry hint is used when positive, else the backoff base; either
// way the delay doubles per attempt.
func (rp *RetryPolicy) RateLimitDelay(hint time.Duration, attempt int) time.Duration {
	if hint <= 0 {
		hint = rp.config.BackoffBase
	}
	return rp.scale(hint, attempt)
}

func (rp *RetryPolicy) scale(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= rp.config.MaxBackoff {
			return rp.config.MaxBackoff
		}
	}
	if delay > rp.config.MaxBackoff {
		delay = rp.config.MaxBackoff
	}
	return delay
}

// Wait blocks for the delay or until the context is done. Each caller waits
// independently; no shared state is held during the delay.
func (rp *RetryPolicy) Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsTransient reports whether an error is a transport fault worth retrying:
// timeouts and connection-level failures, not upstream protocol errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"temporary failure",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// TimeoutConfig defines timeout behavior for outbound calls.
type TimeoutConfig struct {
	// RequestTimeout is the maximum duration for one complete provider call
	// attempt. Exceeding it is a transient fault subject to retry.
	RequestTimeout time.Duration
}

// TimeoutManager enforces the per-attempt timeout on outbound calls.
type TimeoutManager struct {
	config TimeoutConfig
}

// NewTimeoutManager creates a timeout manager with the given configuration.
func NewTimeoutManager(config TimeoutConfig) *TimeoutManager {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &TimeoutManager{config: config}
}

// Config returns a copy of the current timeout configuration.
func (tm *TimeoutManager) Config() TimeoutConfig { return tm.config }

// WithRequestTimeout creates a context bounded by the request timeout.
func (tm *TimeoutManager) WithRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, tm.config.RequestTimeout)
}
