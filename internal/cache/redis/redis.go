// Package redis is a cache backed by a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/userauth/internal/cache"
	rdb "github.com/redis/go-redis/v9"
)

var _ cache.Cache = (*Cache)(nil)

type Cache struct {
	c          rdb.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

// New wraps an existing client. Keys are stored as prefix+key.
func New(c rdb.UniversalClient, prefix string, defaultTTL time.Duration) *Cache {
	return &Cache{c: c, prefix: prefix, defaultTTL: defaultTTL}
}

func (r *Cache) key(k string) string { return r.prefix + k }

func (r *Cache) Get(ctx context.Context, k string) (string, error) {
	v, err := r.c.Get(ctx, r.key(k)).Result()
	if errors.Is(err, rdb.Nil) {
		return "", cache.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cache get: %w", err)
	}
	return v, nil
}

func (r *Cache) Set(ctx context.Context, k, v string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.c.Set(ctx, r.key(k), v, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *Cache) Take(ctx context.Context, k string) (string, error) {
	v, err := r.c.GetDel(ctx, r.key(k)).Result()
	if errors.Is(err, rdb.Nil) {
		return "", cache.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cache take: %w", err)
	}
	return v, nil
}

func (r *Cache) Delete(ctx context.Context, k string) error {
	return r.c.Del(ctx, r.key(k)).Err()
}

func (r *Cache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

// Close is a no-op: the client is owned by the caller.
func (r *Cache) Close() error { return nil }
