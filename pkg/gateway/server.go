package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelgate/modelgate/internal/governance"
	"github.com/modelgate/modelgate/pkg/auth"
	"github.com/modelgate/modelgate/pkg/config"
	"github.com/modelgate/modelgate/pkg/domain"
)

// Version is stamped by the build; handlers report it on the root endpoint.
var Version = "dev"

const maxRequestBodyBytes = 1 << 20

// Server owns the HTTP routing and middleware stack of the gateway.
type Server struct {
	service *Service
	backend auth.Backend
	tokens  *auth.TokenManager
	limiter *governance.SourceLimiter
	metrics *Metrics
	cors    config.CORSConfig
	proxies map[string]struct{}
	logger  *slog.Logger
}

// NewServer wires the HTTP edge. metrics may be nil to disable recording.
// trustedProxies lists the direct peers whose X-Forwarded-For header is
// believed when resolving the rate-limit identity.
func NewServer(
	service *Service,
	backend auth.Backend,
	tokens *auth.TokenManager,
	limiter *governance.SourceLimiter,
	metrics *Metrics,
	cors config.CORSConfig,
	trustedProxies []string,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	proxies := make(map[string]struct{}, len(trustedProxies))
	for _, p := range trustedProxies {
		proxies[p] = struct{}{}
	}
	return &Server{
		service: service,
		backend: backend,
		tokens:  tokens,
		limiter: limiter,
		metrics: metrics,
		cors:    cors,
		proxies: proxies,
		logger:  logger,
	}
}

// Handler builds the route table. Completion and prompt routes sit behind
// rate limiting and bearer auth; token issuance and health surfaces are
// rate limited but unauthenticated.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	throttled := func(h http.HandlerFunc) http.Handler {
		return chain(h, rateLimitMiddleware(s.limiter, s.metrics, s.proxies))
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return chain(h,
			rateLimitMiddleware(s.limiter, s.metrics, s.proxies),
			authMiddleware(s.tokens, s.metrics),
		)
	}

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.Handle("POST /auth/token", throttled(s.handleIssueToken))
	mux.Handle("POST /auth/login", throttled(s.handleLogin))

	mux.Handle("POST /v1/ask", protected(s.handleAsk))
	mux.Handle("GET /v1/models", protected(s.handleModels))

	mux.Handle("GET /v1/prompts", protected(s.handleListPrompts))
	mux.Handle("POST /v1/prompts", protected(s.handleCreatePrompt))
	mux.Handle("GET /v1/prompts/{name}", protected(s.handleGetPrompt))
	mux.Handle("PUT /v1/prompts/{name}", protected(s.handleUpdatePrompt))
	mux.Handle("DELETE /v1/prompts/{name}", protected(s.handleDeletePrompt))

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = s.metrics.metricsMiddleware(handler)
	}
	return chain(handler,
		requestIDMiddleware,
		accessLogMiddleware(s.logger),
		corsMiddleware(s.cors),
	)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "modelgate",
		"version": Version,
		"endpoints": []string{
			"POST /auth/token",
			"POST /auth/login",
			"POST /v1/ask",
			"GET /v1/models",
			"GET /v1/prompts",
			"GET /healthz",
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tokenRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Subject == "" {
		writeError(w, r, fmt.Errorf("%w: subject is required", domain.ErrValidation))
		return
	}

	ttl := s.tokens.DefaultTTL()
	token, err := s.backend.IssueToken(req.Subject, ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.AccessToken{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, fmt.Errorf("%w: username and password are required", domain.ErrValidation))
		return
	}

	identity, err := s.backend.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAuthFailure("bad_credentials")
		}
		writeError(w, r, err)
		return
	}

	ttl := s.tokens.DefaultTTL()
	token, err := s.backend.IssueToken(identity.Subject, ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.AccessToken{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req domain.AskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.service.Ask(r.Context(), SubjectFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	// source=provider proxies the upstream catalog instead of the allow-list.
	if r.URL.Query().Get("source") == "provider" {
		models, err := s.service.RemoteModels(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": models, "source": "provider"})
		return
	}

	models := s.service.Models()
	payload := map[string]any{"models": models}
	if len(models) > 0 {
		payload["default"] = models[0]
	}
	writeJSON(w, http.StatusOK, payload)
}

type promptRequest struct {
	Name        string `json:"name"`
	Body        string `json:"body"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": s.service.prompts.List()})
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name == "" || req.Body == "" {
		writeError(w, r, fmt.Errorf("%w: name and body are required", domain.ErrValidation))
		return
	}

	if err := s.service.prompts.Register(req.Name, req.Body, req.Description); err != nil {
		writeError(w, r, err)
		return
	}

	info, err := s.service.prompts.Describe(req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.prompts.Describe(r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Body == "" {
		writeError(w, r, fmt.Errorf("%w: body is required", domain.ErrValidation))
		return
	}

	if err := s.service.prompts.Update(name, req.Body, req.Description); err != nil {
		writeError(w, r, err)
		return
	}

	info, err := s.service.prompts.Describe(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.prompts.Remove(r.PathValue("name")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrValidation, err)
	}
	return nil
}
