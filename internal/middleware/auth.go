package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"cronostudio/internal/model"
)

const accessTokenCookie = "access_token"

type accessVerifier interface {
	VerifyAccess(tokenString string) (*model.Identity, error)
}

type contextKey string

const identityContextKey contextKey = "auth_identity"

type AuthMiddleware struct {
	verifier accessVerifier
}

func NewAuthMiddleware(verifier accessVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// extractToken pulls the access token from the Authorization header first,
// then from the httpOnly access-token cookie.
func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" && strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}

	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}

	return ""
}

// RequireAuth rejects requests without a valid access token and attaches
// the decoded identity to the request context. Expired tokens get a
// distinct message so clients know to refresh.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		identity, err := m.verifier.VerifyAccess(tokenString)
		if err != nil {
			if errors.Is(err, model.ErrTokenExpired) {
				writeGuardError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token has expired")
				return
			}
			writeGuardError(w, http.StatusUnauthorized, "INVALID_TOKEN", "access token is invalid")
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// OptionalAuth attaches the identity when a valid token is present and
// proceeds unauthenticated otherwise. It never fails the request.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenString := extractToken(r); tokenString != "" {
			if identity, err := m.verifier.VerifyAccess(tokenString); err == nil {
				r = r.WithContext(withIdentity(r.Context(), identity))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles allows only the listed roles through. Must run after
// RequireAuth.
func (m *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	roleSet := map[string]struct{}{}
	for _, role := range allowedRoles {
		roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			if _, allowed := roleSet[strings.ToLower(identity.Role)]; !allowed {
				writeGuardError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ResolveIdentity returns the identity already attached by a guard, or
// attempts extraction itself. Failure to authenticate is a normal outcome
// here, never an error.
func (m *AuthMiddleware) ResolveIdentity(r *http.Request) (*model.Identity, bool) {
	if identity, ok := IdentityFromContext(r.Context()); ok {
		return identity, true
	}

	tokenString := extractToken(r)
	if tokenString == "" {
		return nil, false
	}

	identity, err := m.verifier.VerifyAccess(tokenString)
	if err != nil {
		return nil, false
	}
	return identity, true
}

func withIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	return identity, ok
}

func writeGuardError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
