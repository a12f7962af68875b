package httpapi

import (
	"context"
	"net/http"
	"strings"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

// Principal is the authenticated identity the bearer token resolved to,
// per §4.L ("Authentication is external; bearer token providing userId
// and role").
type Principal struct {
	UserID string
	Role   string // "customer" or "venue_owner"
}

// TokenVerifier resolves a bearer token to a Principal. Authentication
// itself is external per §1's non-goals; this is the narrow contract the
// boundary needs from whatever issues/verifies those tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

type principalKey struct{}

// PrincipalFromContext returns the authenticated Principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// authMiddleware rejects requests with missing/invalid bearer tokens
// with Unauthorized, per §4.L.
func authMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, cerrors.New(cerrors.KindUnauthorized, "missing bearer token"))
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeError(w, cerrors.New(cerrors.KindUnauthorized, "invalid bearer token"))
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
