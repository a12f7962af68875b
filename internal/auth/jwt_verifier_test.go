package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	v, err := NewJWTVerifier("top-secret")
	require.NoError(t, err)

	token := signToken(t, "top-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "customer",
	})

	principal, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.UserID)
	assert.Equal(t, "customer", principal.Role)
}

func TestJWTVerifier_RejectsExpiredToken(t *testing.T) {
	v, err := NewJWTVerifier("top-secret")
	require.NoError(t, err)

	token := signToken(t, "top-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: "customer",
	})

	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindUnauthorized, kind)
}

func TestJWTVerifier_RejectsWrongSecret(t *testing.T) {
	v, err := NewJWTVerifier("top-secret")
	require.NoError(t, err)

	token := signToken(t, "other-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Role:             "customer",
	})

	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestJWTVerifier_RejectsMissingRole(t *testing.T) {
	v, err := NewJWTVerifier("top-secret")
	require.NoError(t, err)

	token := signToken(t, "top-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})

	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestJWTVerifier_RejectsUnsupportedSigningMethod(t *testing.T) {
	v, err := NewJWTVerifier("top-secret")
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Role:             "customer",
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	require.Error(t, err)
}

func TestNewJWTVerifier_RejectsEmptySecret(t *testing.T) {
	_, err := NewJWTVerifier("")
	require.Error(t, err)
}
