//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cronostudio/internal/config"
	"cronostudio/internal/handler"
	"cronostudio/internal/middleware"
	"cronostudio/internal/model"
	"cronostudio/internal/router"
	"cronostudio/internal/service"
	"cronostudio/internal/token"
)

const testWebhookSecret = "wh_integration_secret_0123456789abcdef"
const testServiceUserID = "00000000-0000-0000-0000-000000000001"

// memUserStore is an in-memory service.UserStore so the full HTTP stack
// runs without PostgreSQL.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]model.User{}}
}

func (m *memUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return model.User{}, model.ErrUserNotFound
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (m *memUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memUserStore) Create(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUserStore) UpdateProfile(_ context.Context, id string, name string, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.Name = name
	u.Email = email
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

func (m *memUserStore) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	m.users[id] = u
	return nil
}

func (m *memUserStore) MarkEmailVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	now := time.Now().UTC()
	u.EmailVerifiedAt = &now
	m.users[id] = u
	return nil
}

func (m *memUserStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return model.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]model.Session{}}
}

func (m *memSessionStore) Create(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TokenHash] = s
	return nil
}

func (m *memSessionStore) Consume(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok || s.RevokedAt != nil || !s.ExpiresAt.After(time.Now()) {
		return "", model.ErrInvalidRefreshToken
	}
	now := time.Now().UTC()
	s.RevokedAt = &now
	m.sessions[tokenHash] = s
	return s.UserID, nil
}

func (m *memSessionStore) Revoke(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tokenHash]; ok && s.RevokedAt == nil {
		now := time.Now().UTC()
		s.RevokedAt = &now
		m.sessions[tokenHash] = s
	}
	return nil
}

func (m *memSessionStore) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for hash, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			m.sessions[hash] = s
		}
	}
	return nil
}

func (m *memSessionStore) DeleteAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, hash)
		}
	}
	return nil
}

type memContentStore struct {
	mu       sync.Mutex
	channels []model.Channel
	videos   []model.Video
	snaps    []model.AnalyticsSnapshot
	runs     []model.AutomationRun
}

func (m *memContentStore) CreateChannel(_ context.Context, ch model.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	return nil
}

func (m *memContentStore) ListChannels(_ context.Context, userID string) ([]model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Channel
	for _, ch := range m.channels {
		if ch.UserID == userID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *memContentStore) FindChannel(_ context.Context, id string, userID string) (model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.ID == id && ch.UserID == userID {
			return ch, nil
		}
	}
	return model.Channel{}, model.ErrChannelNotFound
}

func (m *memContentStore) CreateVideo(_ context.Context, v model.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos = append(m.videos, v)
	return nil
}

func (m *memContentStore) ListVideos(_ context.Context, userID string) ([]model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Video
	for _, v := range m.videos {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memContentStore) FindVideo(_ context.Context, id string, userID string) (model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.videos {
		if v.ID == id && v.UserID == userID {
			return v, nil
		}
	}
	return model.Video{}, model.ErrVideoNotFound
}

func (m *memContentStore) CreateSnapshot(_ context.Context, s model.AnalyticsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s)
	return nil
}

func (m *memContentStore) ListSnapshots(_ context.Context, userID string, videoID string) ([]model.AnalyticsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AnalyticsSnapshot
	for _, s := range m.snaps {
		if s.UserID != userID {
			continue
		}
		if videoID != "" && s.VideoID != videoID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memContentStore) CreateRun(_ context.Context, run model.AutomationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memContentStore) ListRuns(_ context.Context, userID string) ([]model.AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AutomationRun
	for _, run := range m.runs {
		if run.UserID == userID {
			out = append(out, run)
		}
	}
	return out, nil
}

type testEnv struct {
	server   *httptest.Server
	users    *memUserStore
	sessions *memSessionStore
	content  *memContentStore
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	users := newMemUserStore()
	sessions := newMemSessionStore()
	content := &memContentStore{}

	codec, err := token.NewCodec("integration-test-secret-0123456789abcdef", 15*time.Minute)
	require.NoError(t, err)

	authService, err := service.NewAuthService(users, sessions, codec, 24*time.Hour, nil)
	require.NoError(t, err)

	contentService := service.NewContentService(content)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	serviceAuth := middleware.NewServiceAuth(testWebhookSecret, testServiceUserID, authMiddleware, nil)
	rateLimiter := middleware.NewRateLimiter(middleware.NewMemoryCounterStore(), false, nil)

	cfg := &config.Config{
		Env:            "test",
		ServerPort:     "8080",
		RequestTimeout: 30 * time.Second,
		CORSOrigins:    []string{"*"},
	}

	appRouter := router.New(cfg, authMiddleware, serviceAuth, rateLimiter,
		handler.NewAuthHandler(authService, false, false),
		handler.NewProfileHandler(authService, false),
		handler.NewContentHandler(contentService),
		handler.NewHealthHandler(nil),
		http.NotFoundHandler(),
	)

	server := httptest.NewServer(appRouter)
	t.Cleanup(server.Close)

	return &testEnv{server: server, users: users, sessions: sessions, content: content}
}

func postJSON(t *testing.T, url string, payload any, mutate ...func(*http.Request)) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range mutate {
		fn(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getWithToken(t *testing.T, url string, accessToken string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

type authResponse struct {
	Success bool `json:"success"`
	Data    struct {
		AccessToken  string           `json:"access_token"`
		RefreshToken string           `json:"refresh_token"`
		User         model.PublicUser `json:"user"`
	} `json:"data"`
	Error *model.APIError `json:"error"`
}

func decodeAuth(t *testing.T, resp *http.Response) authResponse {
	t.Helper()

	var parsed authResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return parsed
}

// registerUser creates an account over HTTP and returns the token pair.
func registerUser(t *testing.T, env *testEnv, email string, password string) authResponse {
	t.Helper()

	resp := postJSON(t, env.server.URL+"/api/auth/register", map[string]string{
		"email":    email,
		"name":     "Integration User",
		"password": password,
	})
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	parsed := decodeAuth(t, resp)
	require.True(t, parsed.Success)
	require.NotEmpty(t, parsed.Data.AccessToken)
	require.NotEmpty(t, parsed.Data.RefreshToken)
	return parsed
}
