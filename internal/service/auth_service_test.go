package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronostudio/internal/model"
	"cronostudio/internal/token"
	"cronostudio/pkg/apierror"
)

type memUserStore struct {
	mu    sync.Mutex
	users map[string]model.User // keyed by id
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]model.User{}}
}

func (s *memUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *memUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *memUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *memUserStore) UpdateProfile(_ context.Context, id string, name string, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.Name = name
	u.Email = strings.ToLower(email)
	s.users[id] = u
	return nil
}

func (s *memUserStore) UpdatePassword(_ context.Context, id string, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[id] = u
	return nil
}

func (s *memUserStore) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	now := time.Now().UTC()
	u.EmailVerifiedAt = &now
	s.users[id] = u
	return nil
}

func (s *memUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return model.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session // keyed by token hash
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]model.Session{}}
}

func (s *memSessionStore) Create(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TokenHash] = sess
	return nil
}

func (s *memSessionStore) Consume(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok || sess.RevokedAt != nil || !sess.ExpiresAt.After(time.Now().UTC()) {
		return "", model.ErrInvalidRefreshToken
	}
	now := time.Now().UTC()
	sess.RevokedAt = &now
	s.sessions[tokenHash] = sess
	return sess.UserID, nil
}

func (s *memSessionStore) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[tokenHash]; ok && sess.RevokedAt == nil {
		now := time.Now().UTC()
		sess.RevokedAt = &now
		s.sessions[tokenHash] = sess
	}
	return nil
}

func (s *memSessionStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for hash, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			sess.RevokedAt = &now
			s.sessions[hash] = sess
		}
	}
	return nil
}

func (s *memSessionStore) DeleteAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, hash)
		}
	}
	return nil
}

func (s *memSessionStore) active(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			count++
		}
	}
	return count
}

type staticGoogleVerifier struct {
	profile GoogleProfile
	err     error
}

func (v staticGoogleVerifier) Verify(context.Context, string) (GoogleProfile, error) {
	return v.profile, v.err
}

func newTestService(t *testing.T) (*AuthService, *memUserStore, *memSessionStore) {
	t.Helper()

	codec, err := token.NewCodec("test-secret", time.Hour)
	require.NoError(t, err)

	users := newMemUserStore()
	sessions := newMemSessionStore()
	svc, err := NewAuthService(users, sessions, codec, 24*time.Hour, nil)
	require.NoError(t, err)

	return svc, users, sessions
}

func register(t *testing.T, svc *AuthService, email string) model.TokenPair {
	t.Helper()

	pair, err := svc.Register(context.Background(), model.RegisterRequest{
		Email:    email,
		Name:     "Alice",
		Password: "Password123",
	})
	require.NoError(t, err)
	return pair
}

func TestRegisterIssuesTokenPair(t *testing.T) {
	svc, _, sessions := newTestService(t)

	pair := register(t, svc, "Alice@Example.Test")

	assert.NotEmpty(t, pair.AccessToken)
	assert.Len(t, pair.RefreshToken, 64)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, "alice@example.test", pair.User.Email, "email is lowercased")
	assert.Equal(t, model.RoleOwner, pair.User.Role)
	assert.Equal(t, 1, sessions.active(pair.User.ID))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	register(t, svc, "alice@example.test")

	_, err := svc.Register(context.Background(), model.RegisterRequest{
		Email:    "ALICE@example.test",
		Password: "Password123",
	})
	require.Error(t, err)
	assert.Equal(t, "EMAIL_EXISTS", apierror.Code(err))
}

func TestRegisterWithoutSession(t *testing.T) {
	svc, _, sessions := newTestService(t)

	user, err := svc.RegisterWithoutSession(context.Background(), model.RegisterRequest{
		Email:    "bob@example.test",
		Password: "Password123",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sessions.active(user.ID))
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), model.RegisterRequest{Email: "not-an-email", Password: "Password123"})
	assert.Equal(t, "BAD_REQUEST", apierror.Code(err))

	_, err = svc.Register(context.Background(), model.RegisterRequest{Email: "a@b.test", Password: "short"})
	assert.Equal(t, "BAD_REQUEST", apierror.Code(err))
}

func TestLoginSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice@example.test")

	pair, err := svc.Login(context.Background(), "Alice@Example.Test", "Password123")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestLoginEnumerationResistance(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "real@example.test")

	_, unknownErr := svc.Login(context.Background(), "nonexistent@example.test", "any")
	_, wrongPassErr := svc.Login(context.Background(), "real@example.test", "wrongpass")

	require.Error(t, unknownErr)
	require.Error(t, wrongPassErr)
	assert.Equal(t, apierror.Code(unknownErr), apierror.Code(wrongPassErr))
	assert.Equal(t, "INVALID_CREDENTIALS", apierror.Code(unknownErr))
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.RequireVerifiedEmail = true

	_, err := svc.RegisterWithoutSession(context.Background(), model.RegisterRequest{
		Email:    "alice@example.test",
		Password: "Password123",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice@example.test", "Password123")
	require.Error(t, err)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", apierror.Code(err))
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, sessions := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, 1, sessions.active(pair.User.ID), "old session revoked, one new session")
}

func TestRefreshIsSingleUse(t *testing.T) {
	svc, _, _ := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	_, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", apierror.Code(err))
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Refresh(context.Background(), "deadbeef")
	assert.Equal(t, "INVALID_REFRESH_TOKEN", apierror.Code(err))

	_, err = svc.Refresh(context.Background(), "")
	assert.Equal(t, "INVALID_REFRESH_TOKEN", apierror.Code(err))
}

func TestRefreshUserDeleted(t *testing.T) {
	svc, users, _ := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	require.NoError(t, users.Delete(context.Background(), pair.User.ID))

	_, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, "USER_NOT_FOUND", apierror.Code(err))
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _, sessions := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))
	assert.Equal(t, 0, sessions.active(pair.User.ID))

	// Revoking again, or revoking garbage, must not fail.
	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))
	require.NoError(t, svc.Logout(context.Background(), "unknown-token"))
	require.NoError(t, svc.Logout(context.Background(), ""))
}

func TestLogoutInvalidatesRefresh(t *testing.T) {
	svc, _, _ := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))

	_, err := svc.Refresh(context.Background(), pair.RefreshToken)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", apierror.Code(err))
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	name := "Alice Cooper"
	updated, err := svc.UpdateProfile(context.Background(), pair.User.ID, model.UpdateProfileRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.Name)

	_, err = svc.UpdateProfile(context.Background(), pair.User.ID, model.UpdateProfileRequest{})
	assert.Equal(t, "PROFILE_NO_CHANGES", apierror.Code(err))

	same := "Alice Cooper"
	_, err = svc.UpdateProfile(context.Background(), pair.User.ID, model.UpdateProfileRequest{Name: &same})
	assert.Equal(t, "PROFILE_NO_CHANGES", apierror.Code(err))
}

func TestUpdateProfileEmailTaken(t *testing.T) {
	svc, _, _ := newTestService(t)
	pair := register(t, svc, "alice@example.test")
	register(t, svc, "bob@example.test")

	taken := "Bob@Example.Test"
	_, err := svc.UpdateProfile(context.Background(), pair.User.ID, model.UpdateProfileRequest{Email: &taken})
	assert.Equal(t, "EMAIL_EXISTS", apierror.Code(err))
}

func TestChangePassword(t *testing.T) {
	svc, _, sessions := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	err := svc.ChangePassword(context.Background(), pair.User.ID, "wrong-current", "NewPassword123")
	assert.Equal(t, "INVALID_PASSWORD", apierror.Code(err))

	require.NoError(t, svc.ChangePassword(context.Background(), pair.User.ID, "Password123", "NewPassword123"))

	// Old sessions die with the old password.
	assert.Equal(t, 0, sessions.active(pair.User.ID))
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", apierror.Code(err))

	_, err = svc.Login(context.Background(), "alice@example.test", "Password123")
	assert.Equal(t, "INVALID_CREDENTIALS", apierror.Code(err))

	_, err = svc.Login(context.Background(), "alice@example.test", "NewPassword123")
	assert.NoError(t, err)
}

func TestDeleteAccountRemovesSessions(t *testing.T) {
	svc, _, sessions := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	_, err := svc.Login(context.Background(), "alice@example.test", "Password123")
	require.NoError(t, err)
	require.Equal(t, 2, sessions.active(pair.User.ID))

	require.NoError(t, svc.DeleteAccount(context.Background(), pair.User.ID))
	assert.Equal(t, 0, sessions.active(pair.User.ID))

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", apierror.Code(err))

	_, err = svc.GetProfile(context.Background(), pair.User.ID)
	assert.Equal(t, "USER_NOT_FOUND", apierror.Code(err))
}

func TestGoogleLoginNotConfigured(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.LoginWithGoogle(context.Background(), "some-token")
	assert.Equal(t, "GOOGLE_NOT_CONFIGURED", apierror.Code(err))
}

func TestGoogleLoginCreatesUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.SetGoogleVerifier(staticGoogleVerifier{profile: GoogleProfile{
		Email:         "Alice@Example.Test",
		Name:          "Alice",
		EmailVerified: true,
	}})

	pair, err := svc.LoginWithGoogle(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.test", pair.User.Email)
	assert.True(t, pair.User.Verified)

	// Second login resolves the same account.
	again, err := svc.LoginWithGoogle(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, pair.User.ID, again.User.ID)
}

func TestGoogleLoginVerifiesExistingAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.RequireVerifiedEmail = true
	svc.SetGoogleVerifier(staticGoogleVerifier{profile: GoogleProfile{
		Email:         "alice@example.test",
		Name:          "Alice",
		EmailVerified: true,
	}})

	_, err := svc.RegisterWithoutSession(context.Background(), model.RegisterRequest{
		Email:    "alice@example.test",
		Name:     "Alice",
		Password: "Password123",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice@example.test", "Password123")
	assert.Equal(t, "EMAIL_NOT_VERIFIED", apierror.Code(err))

	pair, err := svc.LoginWithGoogle(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.True(t, pair.User.Verified)

	// Password login unlocks once Google vouched for the address.
	_, err = svc.Login(context.Background(), "alice@example.test", "Password123")
	assert.NoError(t, err)
}

func TestGoogleLoginBadToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.SetGoogleVerifier(staticGoogleVerifier{err: errors.New("signature mismatch")})

	_, err := svc.LoginWithGoogle(context.Background(), "forged")
	assert.Equal(t, "BAD_REQUEST", apierror.Code(err))
}

func TestIdentityFromAuthHeader(t *testing.T) {
	svc, _, _ := newTestService(t)
	pair := register(t, svc, "alice@example.test")

	identity, ok := svc.IdentityFromAuthHeader("Bearer " + pair.AccessToken)
	require.True(t, ok)
	assert.Equal(t, pair.User.ID, identity.UserID)

	userID, ok := svc.UserIDFromAuthHeader("Bearer " + pair.AccessToken)
	require.True(t, ok)
	assert.Equal(t, pair.User.ID, userID)

	for _, header := range []string{"", "Bearer", "Bearer garbage", "Basic abc", pair.AccessToken} {
		_, ok := svc.IdentityFromAuthHeader(header)
		assert.False(t, ok, "header %q", header)
	}
}
