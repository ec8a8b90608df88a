// Package pg implements the user directory and the refresh token whitelist on
// PostgreSQL through a pgx connection pool.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig tunes the pgx pool. Zero values keep the pgx defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type Store struct{ pool *pgxpool.Pool }

// New opens the pool. A failed startup ping is logged, not returned, so the
// service can come up while the database is still booting.
func New(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	log := logger.From(ctx).With(logger.Component("store.pg"))
	if err := pool.Ping(ctx); err != nil {
		log.Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		log.Info("pg pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close is idempotent.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Users returns the user repository view of the store.
func (s *Store) Users() *Users { return &Users{pool: s.pool} }

// RefreshTokens returns the refresh whitelist view of the store. now may be nil.
func (s *Store) RefreshTokens(now func() time.Time) *RefreshTokens {
	if now == nil {
		now = time.Now
	}
	return &RefreshTokens{pool: s.pool, now: now}
}

const (
	codeUniqueViolation   = "23505"
	codeInvalidTextRepr   = "22P02"
	constraintProviderKey = "app_user_kakao_id_key"
	constraintHandleKey   = "app_user_login_handle_key"
)

// mapErr translates driver errors into repository sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			if pgErr.ConstraintName == constraintHandleKey {
				return repository.ErrHandleTaken
			}
			return repository.ErrConflict
		case codeInvalidTextRepr:
			// a malformed uuid cannot match any row
			return repository.ErrNotFound
		}
	}
	return err
}
