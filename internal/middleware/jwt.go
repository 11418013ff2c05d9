// Package middleware holds the chi middleware for the trust boundary:
// bearer token verification and the owner isolation guard. Every protected
// route passes through both; tool dispatch re-applies the guard internally
// because the orchestrator can chain and re-enter tool calls.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/auth"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/httputil"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// ClaimsKey is the context key for the verified claim set
	ClaimsKey ContextKey = "claims"
)

// JWT creates a chi middleware that verifies the bearer token and stores
// the claim set in the request context. Verification is stateless: every
// request is re-verified against the shared secret.
func JWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.Unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				httputil.Unauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := auth.Verify(parts[1], secret)
			if err != nil {
				httputil.Unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOwner creates a middleware that enforces isolation: the {user_id}
// path segment must equal the verified claim's sub. Mismatch fails closed
// with a 403 that reveals nothing about the target resource.
func RequireOwner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				httputil.Unauthorized(w, "missing identity")
				return
			}
			owner := chi.URLParam(r, "user_id")
			if owner == "" || owner != claims.Sub {
				httputil.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims extracts the verified claim set from context, or nil.
func GetClaims(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsKey).(*auth.Claims); ok {
		return c
	}
	return nil
}

// GetUserID extracts the verified subject from context, or "".
func GetUserID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Sub
	}
	return ""
}
