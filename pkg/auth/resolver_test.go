package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/config"
	"github.com/modelgate/modelgate/pkg/domain"
)

func TestResolverSelectsBuiltins(t *testing.T) {
	resolver := NewResolver(nil)
	tokens := NewTokenManager("test-signing-key", time.Hour)

	tests := []struct {
		backend string
		want    any
	}{
		{BackendNull, &NullBackend{}},
		{BackendToken, &TokenBackend{}},
		{BackendStatic, &StaticBackend{}},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			backend := resolver.Resolve(config.AuthConfig{Backend: tc.backend}, tokens)
			assert.IsType(t, tc.want, backend)
		})
	}
}

func TestResolverFailsClosedOnUnknownBackend(t *testing.T) {
	resolver := NewResolver(nil)
	tokens := NewTokenManager("test-signing-key", time.Hour)

	backend := resolver.Resolve(config.AuthConfig{Backend: "ldap"}, tokens)
	assert.IsType(t, &NullBackend{}, backend)

	_, err := backend.Authenticate(context.Background(), "alice", "secret")
	require.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestResolverFailsClosedOnConstructorError(t *testing.T) {
	resolver := NewResolver(nil)
	resolver.Register("broken", func(config.AuthConfig, *TokenManager) (Backend, error) {
		return nil, errors.New("cannot connect")
	})

	tokens := NewTokenManager("test-signing-key", time.Hour)
	backend := resolver.Resolve(config.AuthConfig{Backend: "broken"}, tokens)
	assert.IsType(t, &NullBackend{}, backend)
}

func TestResolverRegisterOverrides(t *testing.T) {
	resolver := NewResolver(nil)
	tokens := NewTokenManager("test-signing-key", time.Hour)

	custom := NewStaticBackend(map[string]string{"bob": "hunter2"}, NewTokenBackend(tokens))
	resolver.Register(BackendNull, func(config.AuthConfig, *TokenManager) (Backend, error) {
		return custom, nil
	})

	backend := resolver.Resolve(config.AuthConfig{Backend: BackendNull}, tokens)
	assert.Same(t, custom, backend)
}
