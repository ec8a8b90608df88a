package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ repository.UserRepository = (*Users)(nil)

type Users struct{ pool *pgxpool.Pool }

const userColumns = `id::text, kakao_id, login_handle, nickname, avatar_url, email, created_at, updated_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	if err := row.Scan(&u.ID, &u.ProviderID, &u.LoginHandle, &u.Nickname, &u.AvatarURL, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Users) GetByID(ctx context.Context, id string) (*repository.User, error) {
	const q = `SELECT ` + userColumns + ` FROM app_user WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, q, id))
}

func (s *Users) GetByProviderID(ctx context.Context, providerID int64) (*repository.User, error) {
	const q = `SELECT ` + userColumns + ` FROM app_user WHERE kakao_id = $1`
	return scanUser(s.pool.QueryRow(ctx, q, providerID))
}

func (s *Users) Create(ctx context.Context, u *repository.User) error {
	const q = `
INSERT INTO app_user (id, kakao_id, login_handle, nickname, avatar_url, email, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q,
		u.ID, u.ProviderID, u.LoginHandle, u.Nickname, u.AvatarURL, u.Email, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if mapped := mapErr(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("pg create user: %w", err)
	}
	return nil
}

func (s *Users) UpdateProfile(ctx context.Context, id string, upd repository.ProfileUpdate, updatedAt time.Time) (*repository.User, error) {
	const q = `
UPDATE app_user SET
  nickname   = COALESCE($2, nickname),
  avatar_url = COALESCE($3, avatar_url),
  email      = COALESCE($4, email),
  updated_at = $5
WHERE id = $1
RETURNING ` + userColumns
	return scanUser(s.pool.QueryRow(ctx, q, id, upd.Nickname, upd.AvatarURL, upd.Email, updatedAt))
}

func (s *Users) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM app_user WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
