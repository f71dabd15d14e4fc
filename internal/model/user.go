package model

import "time"

// Roles understood by the access-control layer.
const (
	RoleOwner        = "owner"
	RoleCollaborator = "collaborator"
	RoleAutomation   = "automation"
)

// NormalizeRole is the single place a missing or unknown role claim falls
// back to owner. Older tokens were issued without a role claim; they keep
// working as owner tokens.
func NormalizeRole(role string) string {
	switch role {
	case RoleOwner, RoleCollaborator, RoleAutomation:
		return role
	default:
		return RoleOwner
	}
}

type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            string     `json:"role"`
	PasswordHash    string     `json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Identity is the decoded access-token view attached to a request.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Session is one refresh-token record. Only the SHA-256 hash of the raw
// token is stored; the raw value exists solely in transit.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// PublicUser is the client-facing user shape.
type PublicUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		Verified: u.EmailVerifiedAt != nil,
	}
}

// TokenPair is the authentication response body: the freshly issued access
// token, the raw refresh token and the user it belongs to.
type TokenPair struct {
	AccessToken      string     `json:"access_token"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshToken     string     `json:"refresh_token"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
	TokenType        string     `json:"token_type"`
	User             PublicUser `json:"user"`
}
