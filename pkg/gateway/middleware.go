package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modelgate/modelgate/internal/governance"
	"github.com/modelgate/modelgate/pkg/auth"
	"github.com/modelgate/modelgate/pkg/config"
	"github.com/modelgate/modelgate/pkg/domain"
)

// RequestIDHeader carries the correlation ID on requests and responses.
const RequestIDHeader = "X-Request-ID"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	requestIDContextKey contextKey = "requestID"
	subjectContextKey   contextKey = "subject"
)

// RequestIDFromContext extracts the correlation ID, empty when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// SubjectFromContext extracts the authenticated subject, empty when the
// request did not pass through the auth middleware.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey).(string)
	return subject
}

// requestIDMiddleware tags every request with a correlation ID. An inbound
// X-Request-ID is honored so callers can stitch traces across systems.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLogMiddleware emits one structured log line per request.
func accessLogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", peerAddress(r),
				"forwarded_for", r.Header.Get("X-Forwarded-For"),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}

// corsMiddleware applies the configured CORS headers and answers preflights.
func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := strings.Join(cfg.AllowOrigins, ", ")
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origins != "" {
				w.Header().Set("Access-Control-Allow-Origin", origins)
			}
			if methods != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				w.Header().Set("Access-Control-Allow-Headers", headers)
			}
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware throttles by source address. Throttled responses carry
// Retry-After and the X-RateLimit headers.
func rateLimitMiddleware(limiter *governance.SourceLimiter, metrics *Metrics, proxies map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			address := clientAddress(r, proxies)

			admitted, retryAfter := limiter.Admit(address)
			if !admitted {
				if metrics != nil {
					metrics.RecordRateLimitRejection(endpointName(r.URL.Path))
				}
				governance.WriteRateLimitHeaders(w, limiter.Ceiling(), 0, time.Now().Add(retryAfter))
				writeError(w, r, &domain.RateLimitError{Address: address, RetryAfter: retryAfter})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware requires a valid bearer token and stores the subject in the
// request context.
func authMiddleware(tokens *auth.TokenManager, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				if metrics != nil {
					metrics.RecordAuthFailure("missing_credentials")
				}
				writeError(w, r, err)
				return
			}

			subject, err := tokens.Verify(token)
			if err != nil {
				if metrics != nil {
					metrics.RecordAuthFailure("invalid_token")
				}
				writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", domain.ErrAuthenticationFailed)
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("%w: authorization header must use the bearer scheme", domain.ErrAuthenticationFailed)
	}
	return token, nil
}

// peerAddress returns the host of the direct connection.
func peerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientAddress resolves the throttling identity. X-Forwarded-For is
// client-controlled, so the first hop is honored only when the direct peer
// is a configured trusted proxy; otherwise the header is ignored.
func clientAddress(r *http.Request, proxies map[string]struct{}) string {
	peer := peerAddress(r)
	if _, ok := proxies[peer]; !ok {
		return peer
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if addr := strings.TrimSpace(first); addr != "" {
			return addr
		}
	}
	return peer
}

// chain applies middlewares so the first listed is the outermost.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
