package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier("1650000000", "channel-secret", "https://access.line.me")
	require.NoError(t, err)
	return v
}

func TestJWTVerifier_Verify_ValidToken(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Sign(Claims{
		Name: "Somchai",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "U1234",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	userID, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "U1234", userID)
}

func TestJWTVerifier_Verify_Rejects(t *testing.T) {
	v := newVerifier(t)
	other, err := NewJWTVerifier("1650000000", "other-secret", "https://access.line.me")
	require.NoError(t, err)

	expired, err := v.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "U1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)

	wrongSecret, err := other.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "U1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	require.NoError(t, err)

	wrongAudience, err := v.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "U1",
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	require.NoError(t, err)

	noSubject, err := v.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong secret", wrongSecret},
		{"wrong audience", wrongAudience},
		{"no subject", noSubject},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tc.token)
			assert.True(t, errors.Is(err, ErrInvalidCredential), "got %v", err)
		})
	}
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("id", "", "")
	assert.Error(t, err)
}
