package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/roastmyui/backend/internal/models"
)

type contextKey string

const ctxIdentityKey contextKey = "identity"

// TokenVerifier is the interface used by the auth middleware.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (models.Identity, error)
}

// Authenticate verifies the Bearer session token issued by the identity
// provider and stores the caller's identity in the request context.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			id, err := verifier.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// IdentityFromCtx returns the authenticated caller, or false when the
// request did not pass through Authenticate.
func IdentityFromCtx(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ctxIdentityKey).(models.Identity)
	return id, ok && id.ExternalID != ""
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
