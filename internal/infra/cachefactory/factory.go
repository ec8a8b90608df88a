// Package cachefactory picks the cache backend for authorization state.
package cachefactory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/userauth/internal/cache"
	cmem "github.com/dropDatabas3/userauth/internal/cache/memory"
	credis "github.com/dropDatabas3/userauth/internal/cache/redis"
)

const (
	KindMemory = "memory"
	KindRedis  = "redis"
)

var ErrNoRedisClient = errors.New("cachefactory: redis cache needs a client")

type Config struct {
	Kind   string
	Prefix string
	// DefaultTTL applies when Set is called with a zero ttl. Zero means 2m.
	DefaultTTL time.Duration
}

// Open returns the backend selected by cfg.Kind. An empty kind means memory.
// The redis backend shares client with the refresh store and rate limiter,
// so closing the returned cache does not close client.
func Open(cfg Config, client rdb.UniversalClient) (cache.Cache, error) {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindRedis:
		if client == nil {
			return nil, ErrNoRedisClient
		}
		return credis.New(client, cfg.Prefix, ttl), nil
	case "", KindMemory:
		return cmem.New(ttl), nil
	default:
		return nil, fmt.Errorf("cachefactory: unsupported kind %q", cfg.Kind)
	}
}
