package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/modelgate/modelgate/pkg/domain"
)

// TokenManager issues and verifies signed bearer tokens. The claim set is
// deliberately minimal: subject and expiry, nothing else.
type TokenManager struct {
	signingKey []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTokenManager creates a token manager. defaultTTL applies when Issue is
// called with a zero TTL.
func NewTokenManager(signingKey string, defaultTTL time.Duration) *TokenManager {
	return &TokenManager{
		signingKey: []byte(signingKey),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// DefaultTTL returns the TTL applied when none is given to Issue.
func (tm *TokenManager) DefaultTTL() time.Duration { return tm.defaultTTL }

// Issue creates a signed HS256 token for the subject. A non-positive ttl
// selects the configured default.
func (tm *TokenManager) Issue(subject string, ttl time.Duration) (string, error) {
	if len(tm.signingKey) == 0 {
		return "", fmt.Errorf("%w: signing key not configured", domain.ErrTokenIssuance)
	}
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", domain.ErrTokenIssuance)
	}
	if ttl <= 0 {
		ttl = tm.defaultTTL
	}

	now := tm.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.signingKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTokenIssuance, err)
	}
	return signed, nil
}

// Verify validates the token signature and expiry and returns the subject.
// A token is rejected from the exact expiry instant onward.
func (tm *TokenManager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, tm.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, domain.ErrTokenExpired)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, domain.ErrInvalidToken)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, domain.ErrInvalidToken)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token payload missing subject", domain.ErrAuthenticationFailed)
	}

	return claims.Subject, nil
}

func (tm *TokenManager) keyFunc(_ *jwt.Token) (any, error) {
	return tm.signingKey, nil
}
