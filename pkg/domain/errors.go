package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAuthorizationDenied  = errors.New("authorization denied")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenIssuance        = errors.New("token issuance failed")
	ErrUnsupportedOperation = errors.New("operation not supported by auth backend")
	ErrValidation           = errors.New("validation failed")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrDuplicateTemplate    = errors.New("template already exists")
	ErrProtectedTemplate    = errors.New("template is built-in and cannot be removed")
	ErrRetriesExhausted     = errors.New("max retries exceeded")
	ErrConfigInvalid        = errors.New("invalid configuration")
)

// RateLimitError reports a source address that exceeded its request window.
// RetryAfter is the remaining window time.
type RateLimitError struct {
	Address    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Address, e.RetryAfter)
}

// MissingVariableError reports template placeholders that were not supplied.
type MissingVariableError struct {
	Template string
	Names    []string
}

func (e *MissingVariableError) Error() string {
	if e.Template == "" {
		return fmt.Sprintf("missing required variables %v", e.Names)
	}
	return fmt.Sprintf("missing required variables %v for template %q", e.Names, e.Template)
}

func (e *MissingVariableError) Unwrap() error { return ErrValidation }

// ProviderError wraps a non-retryable upstream failure. Status carries the
// upstream HTTP status; Body is the (truncated) upstream response body.
type ProviderError struct {
	Status int
	Body   string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error: %v", e.Err)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// GatewayError wraps errors with a stable machine-readable code for the API
// edge. Details must never contain credentials or upstream secrets.
type GatewayError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the API.
// It intentionally avoids exposing sensitive details while providing a stable
// machine-readable code.
type ErrorResponse struct {
	Code      string         `json:"code"`                 // Machine-readable error code (e.g., AUTHN_FAILED, RATE_LIMITED)
	Message   string         `json:"message"`              // Human-readable message (safe for logs)
	RequestID string         `json:"request_id,omitempty"` // Correlation ID for diagnostics
	Details   map[string]any `json:"details,omitempty"`    // Optional structured context
}
