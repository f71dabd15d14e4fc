package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "wh_secret_0123456789abcdef0123456789abcdef"

func newServiceAuth(serviceUserID string) *ServiceAuth {
	auth, _ := newFakeAuth()
	return NewServiceAuth(testWebhookSecret, serviceUserID, auth, nil)
}

func actorEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		require.True(t, ok, "guard must attach an actor before the handler runs")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(actor)
	})
}

func TestServiceOrOwnerAcceptsSecret(t *testing.T) {
	guard := newServiceAuth("svc-user-id")
	handler := guard.RequireServiceOrOwner(actorEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/api/automation-runs", nil)
	req.Header.Set(WebhookSecretHeader, testWebhookSecret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var actor Actor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &actor))
	assert.Equal(t, "svc-user-id", actor.UserID)
	assert.True(t, actor.ViaService)
}

func TestServiceOrOwnerAcceptsOwnerToken(t *testing.T) {
	guard := newServiceAuth("svc-user-id")
	handler := guard.RequireServiceOrOwner(actorEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/api/automation-runs", nil)
	req.Header.Set("Authorization", "Bearer owner-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var actor Actor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &actor))
	assert.Equal(t, "user-owner", actor.UserID)
	assert.False(t, actor.ViaService)
}

func TestServiceOrOwnerRejectsWrongSecret(t *testing.T) {
	guard := newServiceAuth("svc-user-id")
	handler := guard.RequireServiceOrOwner(actorEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/api/automation-runs", nil)
	req.Header.Set(WebhookSecretHeader, "not-the-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeErrorCode(t, rec))
}

func TestServiceOrOwnerRejectsCollaboratorWithoutSecret(t *testing.T) {
	guard := newServiceAuth("svc-user-id")
	handler := guard.RequireServiceOrOwner(actorEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/api/automation-runs", nil)
	req.Header.Set("Authorization", "Bearer collaborator-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeErrorCode(t, rec))
}

// A valid secret overrides the caller's own role: automation tooling may
// hold a collaborator token and still act through the service user.
func TestServiceOrOwnerSecretOverridesRole(t *testing.T) {
	guard := newServiceAuth("svc-user-id")
	handler := guard.RequireServiceOrOwner(actorEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/api/automation-runs", nil)
	req.Header.Set("Authorization", "Bearer collaborator-token")
	req.Header.Set(WebhookSecretHeader, testWebhookSecret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var actor Actor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &actor))
	assert.Equal(t, "svc-user-id", actor.UserID)
	assert.True(t, actor.ViaService)
}

func TestServiceOrOwnerMisconfiguredServiceUser(t *testing.T) {
	guard := newServiceAuth("")
	handler := guard.RequireServiceOrOwner(actorEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/api/automation-runs", nil)
	req.Header.Set(WebhookSecretHeader, testWebhookSecret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "SERVICE_USER_MISCONFIGURED", decodeErrorCode(t, rec))
}

func TestServiceOrOwnerNoCredentials(t *testing.T) {
	guard := newServiceAuth("svc-user-id")
	handler := guard.RequireServiceOrOwner(actorEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/api/automation-runs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeErrorCode(t, rec))
}

func TestSecretMatchesEmptyConfigured(t *testing.T) {
	auth, _ := newFakeAuth()
	guard := NewServiceAuth("", "svc-user-id", auth, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/automation-runs", nil)
	req.Header.Set(WebhookSecretHeader, "")
	assert.False(t, guard.secretMatches(req))

	req.Header.Set(WebhookSecretHeader, "anything")
	assert.False(t, guard.secretMatches(req))
}
