// Package auth provides the authenticated-request capability consumed by
// the remote game client. The login and token-refresh flow itself lives
// outside this core; it is injected as a refresh function.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies a bearer token for authenticated requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Used in tests and for
// long-lived service tokens.
type StaticTokenSource struct {
	token string
}

func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token(_ context.Context) (string, error) {
	return s.token, nil
}

// RefreshFunc obtains a fresh token from the excluded auth collaborator.
type RefreshFunc func(ctx context.Context) (string, error)

// RefreshingTokenSource caches the current token and refreshes it ahead
// of the JWT exp claim. The token signature is not verified here; the
// claim is only read to schedule refresh, the server remains the
// authority on validity.
type RefreshingTokenSource struct {
	mutex     sync.Mutex
	refresh   RefreshFunc
	leeway    time.Duration
	token     string
	expiresAt time.Time
}

func NewRefreshingTokenSource(refresh RefreshFunc, leeway time.Duration) *RefreshingTokenSource {
	return &RefreshingTokenSource{
		refresh: refresh,
		leeway:  leeway,
	}
}

func (s *RefreshingTokenSource) Token(ctx context.Context) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.token != "" && (s.expiresAt.IsZero() || time.Now().Before(s.expiresAt.Add(-s.leeway))) {
		return s.token, nil
	}

	token, err := s.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %v", err)
	}

	s.token = token
	s.expiresAt = tokenExpiry(token)

	return s.token, nil
}

// tokenExpiry reads the exp claim without verifying the signature. A
// token that cannot be parsed is treated as non-expiring and is refreshed
// only when the server rejects it.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
