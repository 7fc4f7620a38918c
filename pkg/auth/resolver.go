package auth

import (
	"log/slog"

	"github.com/modelgate/modelgate/pkg/config"
)

// Builtin backend names accepted in configuration.
const (
	BackendNull   = "null"
	BackendToken  = "token"
	BackendStatic = "static"
)

// Constructor builds a backend from the auth configuration.
type Constructor func(cfg config.AuthConfig, tokens *TokenManager) (Backend, error)

// Resolver maps configuration names to backend constructors. The mapping is
// closed at startup; unknown names fail closed to the null backend.
type Resolver struct {
	constructors map[string]Constructor
	logger       *slog.Logger
}

// NewResolver creates a resolver with the builtin backends registered.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		constructors: make(map[string]Constructor),
		logger:       logger,
	}

	r.Register(BackendNull, func(config.AuthConfig, *TokenManager) (Backend, error) {
		return NewNullBackend(), nil
	})
	r.Register(BackendToken, func(_ config.AuthConfig, tokens *TokenManager) (Backend, error) {
		return NewTokenBackend(tokens), nil
	})
	r.Register(BackendStatic, func(cfg config.AuthConfig, tokens *TokenManager) (Backend, error) {
		return NewStaticBackend(cfg.Users, NewTokenBackend(tokens)), nil
	})

	return r
}

// Register adds a constructor under a configuration name. Registering an
// existing name replaces it.
func (r *Resolver) Register(name string, ctor Constructor) {
	r.constructors[name] = ctor
}

// Resolve selects the active backend for the configuration. Unknown names and
// constructor failures log a warning and return the null backend, so a
// misconfigured gateway denies rather than admits.
func (r *Resolver) Resolve(cfg config.AuthConfig, tokens *TokenManager) Backend {
	ctor, ok := r.constructors[cfg.Backend]
	if !ok {
		r.logger.Warn("unknown auth backend, failing closed to null", "backend", cfg.Backend)
		return NewNullBackend()
	}

	backend, err := ctor(cfg, tokens)
	if err != nil {
		r.logger.Warn("auth backend construction failed, failing closed to null",
			"backend", cfg.Backend, "error", err)
		return NewNullBackend()
	}

	r.logger.Info("auth backend resolved", "backend", cfg.Backend)
	return backend
}
