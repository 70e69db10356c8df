package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStaticTokenSource(t *testing.T) {
	source := NewStaticTokenSource("abc")
	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestRefreshingTokenSource_cachesUntilExpiry(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fresh := signedToken(t, time.Now().Add(time.Hour))
	source := NewRefreshingTokenSource(func(_ context.Context) (string, error) {
		calls++
		return fresh, nil
	}, time.Minute)

	for i := 0; i < 3; i++ {
		token, err := source.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, fresh, token)
	}
	assert.Equal(t, 1, calls)
}

func TestRefreshingTokenSource_refreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	calls := 0
	expired := signedToken(t, time.Now().Add(-time.Minute))
	fresh := signedToken(t, time.Now().Add(time.Hour))
	source := NewRefreshingTokenSource(func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return expired, nil
		}
		return fresh, nil
	}, time.Minute)

	token, err := source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, expired, token)

	// The cached token is past its exp claim; the next call refreshes.
	token, err = source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, token)
	assert.Equal(t, 2, calls)
}

func TestRefreshingTokenSource_refreshesAheadOfExpiry(t *testing.T) {
	ctx := context.Background()
	calls := 0
	nearExpiry := signedToken(t, time.Now().Add(30*time.Second))
	source := NewRefreshingTokenSource(func(_ context.Context) (string, error) {
		calls++
		return nearExpiry, nil
	}, time.Minute)

	_, err := source.Token(ctx)
	require.NoError(t, err)
	_, err = source.Token(ctx)
	require.NoError(t, err)

	// With a minute of leeway a token 30 seconds from expiry is already
	// stale, so every call refreshes.
	assert.Equal(t, 2, calls)
}

func TestRefreshingTokenSource_refreshFailure(t *testing.T) {
	source := NewRefreshingTokenSource(func(_ context.Context) (string, error) {
		return "", fmt.Errorf("login required")
	}, time.Minute)

	_, err := source.Token(context.Background())
	assert.Error(t, err)
}

func TestRefreshingTokenSource_opaqueTokenNeverExpiresLocally(t *testing.T) {
	ctx := context.Background()
	calls := 0
	source := NewRefreshingTokenSource(func(_ context.Context) (string, error) {
		calls++
		return "not-a-jwt", nil
	}, time.Minute)

	for i := 0; i < 3; i++ {
		token, err := source.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "not-a-jwt", token)
	}
	assert.Equal(t, 1, calls)
}
