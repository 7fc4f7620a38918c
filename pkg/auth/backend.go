// Package auth provides bearer-token issuance and verification plus the
// pluggable credential backends the gateway authenticates against.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/modelgate/modelgate/pkg/domain"
)

// Backend is the capability set an auth backend may implement. Variants that
// lack a capability return domain.ErrUnsupportedOperation for it.
type Backend interface {
	// Authenticate checks credentials and returns the resulting identity.
	// Unknown users and wrong passwords yield domain.ErrAuthenticationFailed.
	Authenticate(ctx context.Context, username, password string) (*domain.Identity, error)

	// IssueToken creates a bearer token for the subject. A non-positive ttl
	// selects the backend's default.
	IssueToken(subject string, ttl time.Duration) (string, error)
}

// NullBackend is the safe default: it authenticates nobody and issues nothing.
type NullBackend struct{}

// NewNullBackend creates the deny-all backend.
func NewNullBackend() *NullBackend { return &NullBackend{} }

func (*NullBackend) Authenticate(context.Context, string, string) (*domain.Identity, error) {
	return nil, domain.ErrAuthenticationFailed
}

func (*NullBackend) IssueToken(string, time.Duration) (string, error) {
	return "", fmt.Errorf("%w: null backend cannot issue tokens", domain.ErrUnsupportedOperation)
}

// TokenBackend issues tokens but holds no credentials of its own. It is the
// issuance half that credential-bearing backends delegate to.
type TokenBackend struct {
	tokens *TokenManager
}

// NewTokenBackend creates a backend around the token manager.
func NewTokenBackend(tokens *TokenManager) *TokenBackend {
	return &TokenBackend{tokens: tokens}
}

func (*TokenBackend) Authenticate(context.Context, string, string) (*domain.Identity, error) {
	return nil, fmt.Errorf("%w: token backend holds no credentials", domain.ErrUnsupportedOperation)
}

func (b *TokenBackend) IssueToken(subject string, ttl time.Duration) (string, error) {
	return b.tokens.Issue(subject, ttl)
}

// StaticBackend authenticates against an in-memory credential table and
// delegates token issuance.
type StaticBackend struct {
	users  map[string]string
	issuer *TokenBackend
}

// NewStaticBackend creates a backend over the given username -> password
// table. The table is copied; later mutation of the argument has no effect.
func NewStaticBackend(users map[string]string, issuer *TokenBackend) *StaticBackend {
	copied := make(map[string]string, len(users))
	for u, p := range users {
		copied[u] = p
	}
	return &StaticBackend{users: copied, issuer: issuer}
}

func (b *StaticBackend) Authenticate(_ context.Context, username, password string) (*domain.Identity, error) {
	stored, ok := b.users[username]
	// Compare even for unknown users so lookup timing does not differ.
	if !ok {
		stored = ""
	}
	match := subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
	if !ok || !match {
		return nil, domain.ErrAuthenticationFailed
	}
	return &domain.Identity{
		Subject:    username,
		Attributes: map[string]string{"source": "static"},
	}, nil
}

func (b *StaticBackend) IssueToken(subject string, ttl time.Duration) (string, error) {
	return b.issuer.IssueToken(subject, ttl)
}
