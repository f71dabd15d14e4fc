package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cronostudio/internal/metrics"
	"cronostudio/internal/model"
	"cronostudio/internal/security"
	"cronostudio/internal/token"
	"cronostudio/pkg/apierror"
)

// UserStore persists user records.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
	UpdateProfile(ctx context.Context, id string, name string, email string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// SessionStore persists refresh-token sessions. Consume is the atomic
// revoke-iff-valid used by rotation.
type SessionStore interface {
	Create(ctx context.Context, s model.Session) error
	Consume(ctx context.Context, tokenHash string) (string, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// GoogleVerifier validates a Google ID token and returns the asserted
// profile. Nil when Google login is not configured.
type GoogleVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (GoogleProfile, error)
}

type GoogleProfile struct {
	Email         string
	Name          string
	EmailVerified bool
}

var errGoogleNotConfigured = apierror.New("GOOGLE_NOT_CONFIGURED", "google login is not configured", "", http.StatusServiceUnavailable)

// AuthService orchestrates register/login/refresh/logout and profile
// management over the user and session stores.
type AuthService struct {
	users      UserStore
	sessions   SessionStore
	codec      *token.Codec
	refreshTTL time.Duration
	metrics    *metrics.Metrics
	google     GoogleVerifier

	// RequireVerifiedEmail gates login on a verified email address.
	RequireVerifiedEmail bool
}

func NewAuthService(users UserStore, sessions SessionStore, codec *token.Codec, refreshTTL time.Duration, m *metrics.Metrics) (*AuthService, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if sessions == nil {
		return nil, model.ErrSessionRepoMissing
	}
	if codec == nil {
		return nil, errors.New("token codec is required")
	}
	if refreshTTL <= 0 {
		return nil, errors.New("refresh TTL must be positive")
	}

	return &AuthService{
		users:      users,
		sessions:   sessions,
		codec:      codec,
		refreshTTL: refreshTTL,
		metrics:    m,
	}, nil
}

// SetGoogleVerifier wires the optional Google ID-token verifier.
func (s *AuthService) SetGoogleVerifier(v GoogleVerifier) {
	s.google = v
}

// Register creates a new owner account and immediately issues a token pair.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.TokenPair, error) {
	user, err := s.createUser(ctx, req)
	if err != nil {
		s.record("register", err)
		return model.TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, user)
	s.record("register", err)
	return pair, err
}

// RegisterWithoutSession creates the account but issues no tokens. Used
// when email verification gates login.
func (s *AuthService) RegisterWithoutSession(ctx context.Context, req model.RegisterRequest) (model.PublicUser, error) {
	user, err := s.createUser(ctx, req)
	s.record("register", err)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) createUser(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, apierror.New("BAD_REQUEST", "a valid email is required", "email", http.StatusBadRequest)
	}
	if len(req.Password) < 8 {
		return model.User{}, apierror.New("BAD_REQUEST", "password must be at least 8 characters", "password", http.StatusBadRequest)
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return model.User{}, model.ErrEmailExists
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         model.RoleOwner,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and issues a token pair. Unknown email and
// wrong password return the identical error so accounts cannot be
// enumerated.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	pair, err := s.login(ctx, email, password)
	s.record("login", err)
	return pair, err
}

func (s *AuthService) login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.TokenPair{}, model.ErrInvalidCredentials
		}
		return model.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	if !security.VerifyPassword(user.PasswordHash, password) {
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if s.RequireVerifiedEmail && user.EmailVerifiedAt == nil {
		return model.TokenPair{}, model.ErrEmailNotVerified
	}

	return s.issuePair(ctx, user)
}

// Refresh rotates a refresh token: the consumed session is revoked and a
// new one created, so each raw token works exactly once.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (model.TokenPair, error) {
	pair, err := s.refresh(ctx, rawRefreshToken)
	s.record("refresh", err)
	return pair, err
}

func (s *AuthService) refresh(ctx context.Context, rawRefreshToken string) (model.TokenPair, error) {
	raw := strings.TrimSpace(rawRefreshToken)
	if raw == "" {
		return model.TokenPair{}, model.ErrInvalidRefreshToken
	}

	userID, err := s.sessions.Consume(ctx, token.HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, model.ErrInvalidRefreshToken) {
			return model.TokenPair{}, model.ErrInvalidRefreshToken
		}
		return model.TokenPair{}, fmt.Errorf("consume session: %w", err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.TokenPair{}, model.ErrUserNotFound
		}
		return model.TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	return s.issuePair(ctx, user)
}

// Logout revokes the session matching the raw refresh token. Unknown or
// already-revoked tokens are a no-op, not an error.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken string) error {
	raw := strings.TrimSpace(rawRefreshToken)
	if raw == "" {
		s.record("logout", nil)
		return nil
	}

	err := s.sessions.Revoke(ctx, token.HashRefreshToken(raw))
	s.record("logout", err)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, model.ErrUserNotFound
		}
		return model.PublicUser{}, fmt.Errorf("load user: %w", err)
	}
	return user.Public(), nil
}

// UpdateProfile applies a partial name/email update.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req model.UpdateProfileRequest) (model.PublicUser, error) {
	updated, err := s.updateProfile(ctx, userID, req)
	s.record("profile_update", err)
	return updated, err
}

func (s *AuthService) updateProfile(ctx context.Context, userID string, req model.UpdateProfileRequest) (model.PublicUser, error) {
	if req.Name == nil && req.Email == nil {
		return model.PublicUser{}, model.ErrProfileNoChanges
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, model.ErrUserNotFound
		}
		return model.PublicUser{}, fmt.Errorf("load user: %w", err)
	}

	name := user.Name
	email := user.Email

	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		candidate := normalizeEmail(*req.Email)
		if candidate == "" || !strings.Contains(candidate, "@") {
			return model.PublicUser{}, apierror.New("BAD_REQUEST", "a valid email is required", "email", http.StatusBadRequest)
		}
		email = candidate
	}

	if name == user.Name && email == user.Email {
		return model.PublicUser{}, model.ErrProfileNoChanges
	}

	if email != user.Email {
		exists, err := s.users.ExistsByEmail(ctx, email)
		if err != nil {
			return model.PublicUser{}, fmt.Errorf("check email: %w", err)
		}
		if exists {
			return model.PublicUser{}, model.ErrEmailExists
		}
	}

	if err := s.users.UpdateProfile(ctx, userID, name, email); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, model.ErrUserNotFound
		}
		return model.PublicUser{}, fmt.Errorf("update profile: %w", err)
	}

	user.Name = name
	user.Email = email
	return user.Public(), nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, current string, next string) error {
	err := s.changePassword(ctx, userID, current, next)
	s.record("password_change", err)
	return err
}

func (s *AuthService) changePassword(ctx context.Context, userID string, current string, next string) error {
	if len(next) < 8 {
		return apierror.New("BAD_REQUEST", "password must be at least 8 characters", "new_password", http.StatusBadRequest)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	if !security.VerifyPassword(user.PasswordHash, current) {
		return model.ErrInvalidPassword
	}

	hash, err := security.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// Every open session dies with the old password.
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// DeleteAccount removes every session for the user before the user row, so
// no refresh token can outlive the account.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	err := s.deleteAccount(ctx, userID)
	s.record("account_delete", err)
	return err
}

func (s *AuthService) deleteAccount(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// LoginWithGoogle validates a Google ID token and signs the asserted user
// in, creating the account on first login.
func (s *AuthService) LoginWithGoogle(ctx context.Context, rawIDToken string) (model.TokenPair, error) {
	pair, err := s.loginWithGoogle(ctx, rawIDToken)
	s.record("google_login", err)
	return pair, err
}

func (s *AuthService) loginWithGoogle(ctx context.Context, rawIDToken string) (model.TokenPair, error) {
	if s.google == nil {
		return model.TokenPair{}, errGoogleNotConfigured
	}

	profile, err := s.google.Verify(ctx, strings.TrimSpace(rawIDToken))
	if err != nil {
		return model.TokenPair{}, apierror.New("BAD_REQUEST", "invalid google id token", "", http.StatusBadRequest)
	}

	email := normalizeEmail(profile.Email)
	if email == "" {
		return model.TokenPair{}, apierror.New("BAD_REQUEST", "google token carries no email", "", http.StatusBadRequest)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		user, err = s.createGoogleUser(ctx, email, profile)
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("resolve google user: %w", err)
	}

	// Google vouching for the address counts as verification.
	if user.EmailVerifiedAt == nil && profile.EmailVerified {
		if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
			return model.TokenPair{}, fmt.Errorf("mark email verified: %w", err)
		}
		now := time.Now().UTC()
		user.EmailVerifiedAt = &now
	}

	return s.issuePair(ctx, user)
}

func (s *AuthService) createGoogleUser(ctx context.Context, email string, profile GoogleProfile) (model.User, error) {
	// Provider-backed accounts get an unguessable local password; the
	// user can set a real one through the password-change flow.
	randomSecret, err := token.NewRefreshToken()
	if err != nil {
		return model.User{}, err
	}
	hash, err := security.HashPassword(randomSecret)
	if err != nil {
		return model.User{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(profile.Name),
		Role:         model.RoleOwner,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if profile.EmailVerified {
		user.EmailVerifiedAt = &now
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// UserIDFromAuthHeader parses a "Bearer <token>" header and returns the
// user id it asserts. Used in permissive contexts, so every failure mode
// is just (_, false), never an error.
func (s *AuthService) UserIDFromAuthHeader(header string) (string, bool) {
	identity, ok := s.IdentityFromAuthHeader(header)
	if !ok {
		return "", false
	}
	return identity.UserID, true
}

// IdentityFromAuthHeader is the full-identity variant of
// UserIDFromAuthHeader.
func (s *AuthService) IdentityFromAuthHeader(header string) (*model.Identity, bool) {
	header = strings.TrimSpace(header)
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, false
	}

	identity, err := s.codec.VerifyAccess(strings.TrimSpace(header[7:]))
	if err != nil {
		return nil, false
	}
	return identity, true
}

// VerifyAccess exposes codec verification for the auth middleware.
func (s *AuthService) VerifyAccess(tokenString string) (*model.Identity, error) {
	return s.codec.VerifyAccess(tokenString)
}

func (s *AuthService) issuePair(ctx context.Context, user model.User) (model.TokenPair, error) {
	access, accessExp, err := s.codec.IssueAccess(user)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	raw, err := token.NewRefreshToken()
	if err != nil {
		return model.TokenPair{}, err
	}

	now := time.Now().UTC()
	session := model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: token.HashRefreshToken(raw),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return model.TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	return model.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: session.ExpiresAt,
		TokenType:        "Bearer",
		User:             user.Public(),
	}, nil
}

// record emits the outcome counter for one terminal operation result.
func (s *AuthService) record(operation string, err error) {
	if s.metrics == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = apierror.Code(err)
		if outcome == "" {
			outcome = "internal_error"
		}
	}
	s.metrics.RecordAuth(operation, outcome)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
