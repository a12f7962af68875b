// Package auth provides the default httpapi.TokenVerifier: HMAC-signed
// JWTs carrying the authenticated userId and role, per §4.L. Issuance
// is out of scope (authentication itself is external); this package
// only verifies tokens the composition root is configured to trust.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/httpapi"
)

// Claims is the expected payload of a bearer token: a standard
// registered-claims envelope plus the subject's role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier trusting tokens signed with secret.
// secret must be non-empty; the composition root fails fast otherwise.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: bearer signing secret must not be empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

// Verify implements httpapi.TokenVerifier.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*httpapi.Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, cerrors.New(cerrors.KindUnauthorized, "bearer token is invalid or expired")
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, cerrors.New(cerrors.KindUnauthorized, "bearer token is missing subject or role")
	}
	return &httpapi.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

var _ httpapi.TokenVerifier = (*JWTVerifier)(nil)
