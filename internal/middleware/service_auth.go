package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"cronostudio/internal/metrics"
	"cronostudio/internal/model"
)

// WebhookSecretHeader carries the shared secret that authenticates
// automation callers.
const WebhookSecretHeader = "x-cronostudio-webhook-secret"

type actorContextKey struct{}

// Actor is the resolved caller of a service-or-owner route: either a real
// owner user or the configured service user acting for an automation
// workflow.
type Actor struct {
	UserID     string
	ViaService bool
}

func withActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// ServiceAuth implements the secondary trust path: a shared secret header
// authenticates non-human callers and resolves them to the designated
// service user.
type ServiceAuth struct {
	secret        []byte
	serviceUserID string
	auth          *AuthMiddleware
	metrics       *metrics.Metrics
}

func NewServiceAuth(secret string, serviceUserID string, auth *AuthMiddleware, m *metrics.Metrics) *ServiceAuth {
	return &ServiceAuth{
		secret:        []byte(secret),
		serviceUserID: strings.TrimSpace(serviceUserID),
		auth:          auth,
		metrics:       m,
	}
}

// secretMatches compares the header value against the configured secret in
// constant time. ConstantTimeCompare returns 0 for unequal lengths, which
// leaks length only, not content; the secret is high-entropy so that is an
// accepted tradeoff.
func (s *ServiceAuth) secretMatches(r *http.Request) bool {
	if len(s.secret) == 0 {
		return false
	}

	provided := r.Header.Get(WebhookSecretHeader)
	if provided == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(provided), s.secret) == 1
}

// RequireServiceOrOwner admits either an owner user (access token) or a
// trusted automation caller (webhook secret). The resolved Actor is
// attached to the request context.
//
// Decision order:
//  1. resolve any authenticated user
//  2. check the service secret
//  3. authenticated non-owner without the secret -> 403
//  4. secret without a configured service user -> 500 (deployment error)
//  5. neither credential -> 401
func (s *ServiceAuth) RequireServiceOrOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, hasUser := s.auth.ResolveIdentity(r)
		viaService := s.secretMatches(r)

		if r.Header.Get(WebhookSecretHeader) != "" {
			s.audit(r, viaService)
		}

		switch {
		case hasUser && identity.Role != model.RoleOwner && !viaService:
			writeGuardError(w, http.StatusForbidden, "FORBIDDEN", "owner role required")
			return

		case viaService:
			if s.serviceUserID == "" {
				slog.Error("webhook secret accepted but no service user configured", "path", r.URL.Path)
				writeGuardError(w, http.StatusInternalServerError, model.ErrServiceUserMisconfigured.Code, "service user misconfigured")
				return
			}
			r = r.WithContext(withActor(r.Context(), Actor{UserID: s.serviceUserID, ViaService: true}))

		case hasUser:
			r = r.WithContext(withActor(r.Context(), Actor{UserID: identity.UserID}))

		default:
			writeGuardError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// audit logs every webhook-secret attempt with enough context to trace
// automation callers.
func (s *ServiceAuth) audit(r *http.Request, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	s.metrics.RecordServiceAuth(outcome)

	slog.Info("webhook secret attempt",
		"request_id", r.Header.Get(requestIDHeader),
		"client_ip", extractClientIP(r),
		"path", r.URL.Path,
		"outcome", outcome,
	)
}
