package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKeyType string

const identityKey contextKeyType = "identity"

// AccessTokenCookie is the cookie checked when no Authorization header is present.
const AccessTokenCookie = "accessToken"

// Identity is the request-scoped identity resolved by the Auth middleware.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// TokenVerifier verifies an access token and returns the identity it carries.
// The router injects the token issuer's verification here so this package
// stays free of any JWT dependency.
type TokenVerifier func(token string) (*Identity, error)

// Auth validates the bearer token (falling back to the access-token cookie)
// and injects the resolved identity into the request context. Requests
// without a verifiable token are rejected before any handler runs.
func Auth(verify TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization token")
				return
			}

			identity, err := verify(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole checks the authenticated identity's role against the allow-list.
// With no roles declared the gate is a no-op (unconfigured routes are open to
// any authenticated caller). If no identity was established at all the
// request is rejected as unauthenticated rather than forbidden.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(roleSet) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			identity := IdentityFromContext(r.Context())
			if identity == nil {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no authenticated identity")
				return
			}

			if _, ok := roleSet[identity.Role]; !ok {
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "you don't have permission to access this resource")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext extracts the authenticated identity from the request
// context, or nil if the Auth middleware did not run.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// AccountIDFromContext extracts the authenticated account ID from the request context.
func AccountIDFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.ID
	}
	return ""
}

// WithIdentity returns a context carrying the given identity. Used by tests
// to exercise handlers without running the Auth middleware.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}

	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}

	return ""
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}
