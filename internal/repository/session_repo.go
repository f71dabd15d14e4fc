package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cronostudio/internal/model"
)

// SessionRepository is the sole source of truth for refresh-token validity.
// A session is valid iff revoked_at IS NULL AND expires_at > now().
type SessionRepository struct {
	db Querier
}

func NewSessionRepository(db Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s model.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Consume atomically revokes the session identified by tokenHash iff it is
// still valid, returning the owning user id. Concurrent calls with the same
// token race on a single conditional UPDATE, so exactly one wins; the rest
// see ErrInvalidRefreshToken.
func (r *SessionRepository) Consume(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := r.db.QueryRow(ctx,
		`UPDATE sessions SET revoked_at = now()
		 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
		 RETURNING user_id`, tokenHash).Scan(&userID)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrInvalidRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("consume session: %w", err)
	}
	return userID, nil
}

// Revoke marks the matching session revoked. Revoking an unknown or
// already-revoked token is a no-op, which makes logout idempotent.
func (r *SessionRepository) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = now()
		 WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = now()
		 WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

// DeleteAllForUser hard-deletes every session row for a user. Used by
// account deletion, which removes sessions before the user record.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete sessions for user: %w", err)
	}
	return nil
}

func (r *SessionRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at <= now() OR revoked_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("clean expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
