package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ repository.RefreshTokenStore = (*RefreshTokens)(nil)

// RefreshTokens keeps one row per (user_id, jti). Expired rows are treated as
// absent and removed lazily or by PurgeExpired.
type RefreshTokens struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func (s *RefreshTokens) Save(ctx context.Context, userID, jti string, expiresAt time.Time) error {
	const q = `
INSERT INTO refresh_token (user_id, jti, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, jti) DO UPDATE SET expires_at = EXCLUDED.expires_at`
	if _, err := s.pool.Exec(ctx, q, userID, jti, expiresAt); err != nil {
		return fmt.Errorf("pg refresh save: %w", err)
	}
	return nil
}

func (s *RefreshTokens) Exists(ctx context.Context, userID, jti string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM refresh_token WHERE user_id = $1 AND jti = $2 AND expires_at > $3)`
	var ok bool
	if err := s.pool.QueryRow(ctx, q, userID, jti, s.now()).Scan(&ok); err != nil {
		return false, fmt.Errorf("pg refresh exists: %w", err)
	}
	return ok, nil
}

// Rotate deletes the old row and inserts the new one in a single transaction.
// The DELETE takes the row lock, so of two concurrent rotations of the same jti
// only one sees a deleted row.
func (s *RefreshTokens) Rotate(ctx context.Context, userID, oldJTI, newJTI string, newExpiresAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg refresh rotate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exp time.Time
	err = tx.QueryRow(ctx,
		`DELETE FROM refresh_token WHERE user_id = $1 AND jti = $2 RETURNING expires_at`,
		userID, oldJTI).Scan(&exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("pg refresh rotate: %w", err)
	}
	if !exp.After(s.now()) {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("pg refresh rotate: %w", err)
		}
		return repository.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO refresh_token (user_id, jti, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, jti) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		userID, newJTI, newExpiresAt); err != nil {
		return fmt.Errorf("pg refresh rotate: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg refresh rotate: %w", err)
	}
	return nil
}

func (s *RefreshTokens) Revoke(ctx context.Context, userID, jti string) (bool, error) {
	var exp time.Time
	err := s.pool.QueryRow(ctx,
		`DELETE FROM refresh_token WHERE user_id = $1 AND jti = $2 RETURNING expires_at`,
		userID, jti).Scan(&exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pg refresh revoke: %w", err)
	}
	return exp.After(s.now()), nil
}

func (s *RefreshTokens) RevokeAll(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_token WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("pg refresh revoke all: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeExpired drops every expired row and returns how many were removed.
func (s *RefreshTokens) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_token WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("pg refresh purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
