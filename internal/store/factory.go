// Package store opens the configured backends for the user directory and the
// refresh token whitelist.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
	"github.com/dropDatabas3/userauth/internal/store/memory"
	"github.com/dropDatabas3/userauth/internal/store/pg"
	redisstore "github.com/dropDatabas3/userauth/internal/store/redis"
	migrations "github.com/dropDatabas3/userauth/migrations/postgres"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type RedisConfig struct {
	Addr     string
	DB       int
	Password string
	Prefix   string
}

type Config struct {
	// UsersDriver is memory|postgres.
	UsersDriver string
	// RefreshDriver is memory|redis|postgres.
	RefreshDriver string

	DSN      string
	Postgres pg.PoolConfig
	// Migrate applies the embedded migrations on open.
	Migrate bool

	// Redis is shared with the state cache and the rate limiter when set.
	Redis RedisConfig

	// ConnectRetries bounds the startup connectivity retries; 0 means 5.
	ConnectRetries int
	Now            func() time.Time
}

// Stores holds the opened backends. PG and Redis are nil unless a component
// uses them.
type Stores struct {
	Users   repository.UserRepository
	Refresh repository.RefreshTokenStore

	PG    *pg.Store
	Redis rdb.UniversalClient
}

// Close releases every connection.
func (s *Stores) Close() error {
	var err error
	if s.Redis != nil {
		err = s.Redis.Close()
	}
	if s.PG != nil {
		s.PG.Close()
	}
	return err
}

// Open connects the backends named by cfg, waiting with exponential backoff
// until each answers a ping.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	log := logger.From(ctx).With(logger.Component("store"))
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = 5
	}
	usersDriver := strings.ToLower(cfg.UsersDriver)
	refreshDriver := strings.ToLower(cfg.RefreshDriver)

	s := &Stores{}
	fail := func(err error) (*Stores, error) {
		_ = s.Close()
		return nil, err
	}

	if usersDriver == DriverPostgres || refreshDriver == DriverPostgres {
		pgs, err := pg.New(ctx, cfg.DSN, cfg.Postgres)
		if err != nil {
			return fail(fmt.Errorf("store: open postgres: %w", err))
		}
		s.PG = pgs
		if err := WaitReady(ctx, "postgres", pgs, cfg.ConnectRetries); err != nil {
			return fail(err)
		}
		if cfg.Migrate {
			n, err := pg.Migrate(ctx, pgs.Pool(), migrations.FS, pg.Up, 0)
			if err != nil {
				return fail(fmt.Errorf("store: migrate: %w", err))
			}
			log.Info("migrations applied", logger.Count(n))
		}
	}

	if refreshDriver == DriverRedis || cfg.Redis.Addr != "" {
		client, err := OpenRedis(ctx, cfg.Redis, cfg.ConnectRetries)
		if err != nil {
			return fail(err)
		}
		s.Redis = client
	}

	switch usersDriver {
	case DriverPostgres:
		s.Users = s.PG.Users()
	case DriverMemory, "":
		s.Users = memory.NewUsers()
	default:
		return fail(fmt.Errorf("store: unsupported users driver %q", cfg.UsersDriver))
	}

	switch refreshDriver {
	case DriverPostgres:
		s.Refresh = s.PG.RefreshTokens(cfg.Now)
	case DriverRedis:
		s.Refresh = redisstore.NewRefreshTokens(s.Redis, cfg.Redis.Prefix, cfg.Now)
	case DriverMemory, "":
		s.Refresh = memory.NewRefreshTokens(cfg.Now)
	default:
		return fail(fmt.Errorf("store: unsupported refresh store driver %q", cfg.RefreshDriver))
	}

	log.Info("stores ready",
		logger.String("users", orDefault(usersDriver, DriverMemory)),
		logger.String("refresh", orDefault(refreshDriver, DriverMemory)),
	)
	return s, nil
}

// OpenRedis returns a client that has answered a ping.
func OpenRedis(ctx context.Context, cfg RedisConfig, retries int) (rdb.UniversalClient, error) {
	client := rdb.NewClient(&rdb.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	if err := WaitReady(ctx, "redis", redisPinger{client}, retries); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type redisPinger struct{ c rdb.UniversalClient }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

// RedisPinger adapts a Redis client to the Pinger used by readiness checks.
func RedisPinger(c rdb.UniversalClient) Pinger { return redisPinger{c} }

// WaitReady pings p until it answers, with exponential backoff, at most tries
// times.
func WaitReady(ctx context.Context, name string, p Pinger, tries int) error {
	log := logger.From(ctx).With(logger.Component("store"), logger.String("backend", name))

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 5 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return struct{}{}, p.Ping(pctx)
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn("backend not ready, retrying", logger.Attempt(attempt), logger.Err(err), logger.Any("retry_in", d))
		}),
	)
	if err != nil {
		return fmt.Errorf("store: %s not reachable after %d attempts: %w", name, attempt, err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

