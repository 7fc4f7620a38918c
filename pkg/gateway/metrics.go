package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Governance metrics
	rateLimitRejections *prometheus.CounterVec
	authFailures        *prometheus.CounterVec

	// Provider metrics
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec

	// Prompt metrics
	promptResolutions *prometheus.CounterVec
	promptReloads     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics instance with all gateway metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),

		authFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_auth_failures_total",
				Help: "Total number of failed authentication attempts by reason",
			},
			[]string{"reason"},
		),

		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_provider_requests_total",
				Help: "Total number of upstream provider calls by model and status",
			},
			[]string{"model", "status"},
		),

		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_provider_request_duration_seconds",
				Help:    "Upstream provider call duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		promptResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_prompt_resolutions_total",
				Help: "Total number of template resolutions by template and status",
			},
			[]string{"template", "status"},
		),

		promptReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_prompt_reloads_total",
				Help: "Total number of prompt directory reload attempts by status",
			},
			[]string{"status"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.rateLimitRejections,
		m.authFailures,
		m.providerRequests,
		m.providerLatency,
		m.promptResolutions,
		m.promptReloads,
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRateLimitRejection records a throttled request
func (m *Metrics) RecordRateLimitRejection(endpoint string) {
	m.rateLimitRejections.WithLabelValues(endpoint).Inc()
}

// RecordAuthFailure records a failed authentication attempt
func (m *Metrics) RecordAuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// RecordProviderRequest records an upstream provider call
func (m *Metrics) RecordProviderRequest(model, status string, duration time.Duration) {
	m.providerRequests.WithLabelValues(model, status).Inc()
	m.providerLatency.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordPromptResolution records a template resolution attempt
func (m *Metrics) RecordPromptResolution(template, status string) {
	m.promptResolutions.WithLabelValues(template, status).Inc()
}

// RecordPromptReload records a prompt directory reload attempt
func (m *Metrics) RecordPromptReload(status string) {
	m.promptReloads.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// metricsMiddleware records request totals and latency per endpoint.
func (m *Metrics) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, endpointName(r.URL.Path), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// endpointName normalizes paths so prompt names do not explode label
// cardinality.
func endpointName(path string) string {
	switch path {
	case "/":
		return "root"
	case "/healthz":
		return "healthz"
	case "/metrics":
		return "metrics"
	case "/auth/token":
		return "auth_token"
	case "/auth/login":
		return "auth_login"
	case "/v1/ask":
		return "ask"
	case "/v1/models":
		return "models"
	case "/v1/prompts":
		return "prompts"
	}
	if strings.HasPrefix(path, "/v1/prompts/") {
		return "prompt"
	}
	return "unknown"
}
