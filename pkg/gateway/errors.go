package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/modelgate/modelgate/internal/governance"
	"github.com/modelgate/modelgate/pkg/domain"
)

// Machine-readable error codes returned in the JSON error model.
const (
	codeAuthnFailed     = "AUTHN_FAILED"
	codeAuthzDenied     = "AUTHZ_DENIED"
	codeRateLimited     = "RATE_LIMITED"
	codeValidation      = "VALIDATION_FAILED"
	codePromptNotFound  = "PROMPT_NOT_FOUND"
	codePromptConflict  = "PROMPT_CONFLICT"
	codePromptProtected = "PROMPT_PROTECTED"
	codeUpstreamFailed  = "UPSTREAM_FAILED"
	codeUpstreamBusy    = "UPSTREAM_UNAVAILABLE"
	codeUnsupported     = "UNSUPPORTED_OPERATION"
	codeInternal        = "INTERNAL_ERROR"
)

// classify maps a domain error to an HTTP status and stable error code.
// Messages are taken from the error chain; upstream bodies and credentials
// never leak through because the domain types scrub them.
func classify(err error) (status int, code string) {
	var rateErr *domain.RateLimitError
	var providerErr *domain.ProviderError

	switch {
	case errors.Is(err, domain.ErrAuthenticationFailed),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized, codeAuthnFailed
	case errors.Is(err, domain.ErrAuthorizationDenied):
		return http.StatusForbidden, codeAuthzDenied
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, domain.ErrTemplateNotFound):
		return http.StatusNotFound, codePromptNotFound
	case errors.Is(err, domain.ErrDuplicateTemplate):
		return http.StatusConflict, codePromptConflict
	case errors.Is(err, domain.ErrProtectedTemplate):
		return http.StatusForbidden, codePromptProtected
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, domain.ErrUnsupportedOperation):
		return http.StatusNotImplemented, codeUnsupported
	case errors.Is(err, domain.ErrRetriesExhausted),
		errors.Is(err, governance.ErrCircuitOpen):
		return http.StatusServiceUnavailable, codeUpstreamBusy
	case errors.As(err, &providerErr):
		return http.StatusBadGateway, codeUpstreamFailed
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// writeError renders the standard JSON error model and sets governance
// headers for rate-limit rejections.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	resp := domain.ErrorResponse{
		Code:      code,
		Message:   err.Error(),
		RequestID: RequestIDFromContext(r.Context()),
	}

	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) {
		// Rounded up so callers never retry before the window clears.
		retryAfter := int((rateErr.RetryAfter + time.Second - 1) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		resp.Details = map[string]any{"retry_after_seconds": retryAfter}
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	if status >= http.StatusInternalServerError {
		slog.Default().Error("request failed",
			"path", r.URL.Path, "status", status, "error", err)
	}
	// Only unclassified faults are masked; classified errors keep their
	// caller-facing message.
	if code == codeInternal {
		resp.Message = "internal server error"
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
