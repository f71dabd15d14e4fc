package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cronostudio/internal/model"
)

// refreshTokenBytes gives 256 bits of entropy per refresh token.
const refreshTokenBytes = 32

// Codec signs and verifies access tokens and generates opaque refresh
// tokens. Access tokens are stateless HS256 JWTs; refresh tokens are random
// strings whose SHA-256 hash is what the session store keeps.
type Codec struct {
	secret    []byte
	accessTTL time.Duration
}

func NewCodec(secret string, accessTTL time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("access token TTL must be positive")
	}

	return &Codec{secret: []byte(secret), accessTTL: accessTTL}, nil
}

// IssueAccess signs a new access token for the user and returns it together
// with its expiry.
func (c *Codec) IssueAccess(user model.User) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(c.accessTTL)

	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  model.NormalizeRole(user.Role),
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, exp, nil
}

// VerifyAccess parses and validates an access token. Expired tokens fail
// with ErrTokenExpired; every other verification failure (bad signature,
// malformed token, wrong algorithm) maps to ErrInvalidToken.
func (c *Codec) VerifyAccess(tokenString string) (*model.Identity, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrTokenExpired
		}
		return nil, model.ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, model.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, model.ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return &model.Identity{
		UserID: userID,
		Email:  email,
		Role:   model.NormalizeRole(role),
	}, nil
}

// NewRefreshToken returns a fresh opaque refresh token, hex-encoded.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// HashRefreshToken returns the hex SHA-256 digest of a raw refresh token.
// Deterministic, so the digest serves both for storage and lookup.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
