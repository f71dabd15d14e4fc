//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronostudio/internal/middleware"
	"cronostudio/internal/model"
)

func withSecret(secret string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set(middleware.WebhookSecretHeader, secret)
	}
}

func withBearer(accessToken string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

func TestWebhookSecretCreatesRunAsServiceUser(t *testing.T) {
	env := newTestServer(t)

	resp := postJSON(t, env.server.URL+"/api/automation-runs", map[string]string{
		"workflow": "daily-analytics",
		"status":   "success",
		"detail":   "refreshed 12 videos",
	}, withSecret(testWebhookSecret))
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var parsed struct {
		Success bool                `json:"success"`
		Data    model.AutomationRun `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, testServiceUserID, parsed.Data.UserID)
	assert.True(t, parsed.Data.ViaService)
}

func TestWebhookWrongSecretRejected(t *testing.T) {
	env := newTestServer(t)

	resp := postJSON(t, env.server.URL+"/api/automation-runs", map[string]string{
		"workflow": "daily-analytics",
		"status":   "success",
	}, withSecret("not-the-secret"))
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOwnerTokenCreatesChannel(t *testing.T) {
	env := newTestServer(t)
	registered := registerUser(t, env, "owner@example.test", "Password123!")

	resp := postJSON(t, env.server.URL+"/api/channels", map[string]string{
		"name":        "Main Channel",
		"external_id": "UC123",
	}, withBearer(registered.Data.AccessToken))
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var parsed struct {
		Success bool          `json:"success"`
		Data    model.Channel `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, registered.Data.User.ID, parsed.Data.UserID)

	listResp := getWithToken(t, env.server.URL+"/api/channels", registered.Data.AccessToken)
	t.Cleanup(func() { _ = listResp.Body.Close() })
	assert.Equal(t, http.StatusOK, listResp.StatusCode)
}

func TestServiceUserReadsOwnRows(t *testing.T) {
	env := newTestServer(t)

	createResp := postJSON(t, env.server.URL+"/api/automation-runs", map[string]string{
		"workflow": "daily-analytics",
		"status":   "success",
	}, withSecret(testWebhookSecret))
	t.Cleanup(func() { _ = createResp.Body.Close() })
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	// The secret authenticates reads too, scoped to the service user.
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/automation-runs", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.WebhookSecretHeader, testWebhookSecret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Success bool                  `json:"success"`
		Data    []model.AutomationRun `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Len(t, parsed.Data, 1)
	assert.Equal(t, testServiceUserID, parsed.Data[0].UserID)
}

func TestContentRoutesRejectAnonymous(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.server.URL + "/api/automation-runs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
