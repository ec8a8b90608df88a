// Package redis implements the refresh token whitelist on Redis.
//
// Each user owns one hash, {prefix}rt:{userID}, mapping jti to its expiry in
// unix milliseconds. Reads that decide validity and the mutations that depend
// on them run inside Lua scripts, so every operation is atomic per user.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
	"github.com/redis/go-redis/v9"
)

// Each script receives the current time as an argument so expiry is decided by
// the service clock, not the Redis clock. The hash TTL only garbage-collects users
// whose entries have all expired.

// ARGV: jti, expMs, nowMs
var saveScript = redis.NewScript(`
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local want = tonumber(ARGV[2]) - tonumber(ARGV[3])
local ttl = redis.call('PTTL', KEYS[1])
if want > 0 and ttl >= -1 and ttl < want then
	redis.call('PEXPIRE', KEYS[1], want)
end
return 1
`)

// ARGV: jti, nowMs
var existsScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], ARGV[1])
if not exp then
	return 0
end
if tonumber(exp) <= tonumber(ARGV[2]) then
	redis.call('HDEL', KEYS[1], ARGV[1])
	return 0
end
return 1
`)

// ARGV: oldJti, newJti, newExpMs, nowMs
var rotateScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], ARGV[1])
if not exp then
	return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
if tonumber(exp) <= tonumber(ARGV[4]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
local want = tonumber(ARGV[3]) - tonumber(ARGV[4])
local ttl = redis.call('PTTL', KEYS[1])
if want > 0 and ttl >= -1 and ttl < want then
	redis.call('PEXPIRE', KEYS[1], want)
end
return 1
`)

// ARGV: jti, nowMs
var revokeScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], ARGV[1])
if not exp then
	return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
if tonumber(exp) <= tonumber(ARGV[2]) then
	return 0
end
return 1
`)

var revokeAllScript = redis.NewScript(`
local n = redis.call('HLEN', KEYS[1])
redis.call('DEL', KEYS[1])
return n
`)

// RefreshTokens is a repository.RefreshTokenStore backed by Redis.
type RefreshTokens struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRefreshTokens wraps a configured client. now may be nil.
func NewRefreshTokens(client redis.UniversalClient, prefix string, now func() time.Time) *RefreshTokens {
	if now == nil {
		now = time.Now
	}
	return &RefreshTokens{client: client, prefix: prefix, now: now}
}

func (s *RefreshTokens) key(userID string) string {
	return s.prefix + "rt:" + userID
}

func (s *RefreshTokens) nowMs() int64 { return s.now().UnixMilli() }

func (s *RefreshTokens) Save(ctx context.Context, userID, jti string, expiresAt time.Time) error {
	if err := saveScript.Run(ctx, s.client, []string{s.key(userID)}, jti, ms(expiresAt), s.nowMs()).Err(); err != nil {
		return fmt.Errorf("redis refresh save: %w", err)
	}
	return nil
}

func (s *RefreshTokens) Exists(ctx context.Context, userID, jti string) (bool, error) {
	n, err := existsScript.Run(ctx, s.client, []string{s.key(userID)}, jti, s.nowMs()).Int()
	if err != nil {
		return false, fmt.Errorf("redis refresh exists: %w", err)
	}
	return n == 1, nil
}

func (s *RefreshTokens) Rotate(ctx context.Context, userID, oldJTI, newJTI string, newExpiresAt time.Time) error {
	n, err := rotateScript.Run(ctx, s.client, []string{s.key(userID)}, oldJTI, newJTI, ms(newExpiresAt), s.nowMs()).Int()
	if err != nil {
		return fmt.Errorf("redis refresh rotate: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *RefreshTokens) Revoke(ctx context.Context, userID, jti string) (bool, error) {
	n, err := revokeScript.Run(ctx, s.client, []string{s.key(userID)}, jti, s.nowMs()).Int()
	if err != nil {
		return false, fmt.Errorf("redis refresh revoke: %w", err)
	}
	return n == 1, nil
}

func (s *RefreshTokens) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := revokeAllScript.Run(ctx, s.client, []string{s.key(userID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("redis refresh revoke all: %w", err)
	}
	return n, nil
}

func ms(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }
