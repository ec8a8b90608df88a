// Package rate provides a fixed-window request limiter on Redis.
//
// Keys are laid out as {prefix}{bucket}:{client}:{windowStart}, one bucket per
// auth route, so a client that hits its login budget can still refresh.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Key builds the limiter key for a route bucket and a client (usually its IP).
func Key(bucket, client string) string {
	clean := func(s string) string {
		s = strings.Trim(strings.TrimSpace(s), "/")
		if s == "" {
			return "_"
		}
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) || r == '/' {
				return '_'
			}
			return r
		}, s)
	}
	return clean(bucket) + ":" + clean(client)
}

// hitScript counts a hit and opens the window on the first one, in one round
// trip so a crash between INCR and PEXPIRE cannot leave an immortal counter.
// Returns {hits, pttl}.
var hitScript = rdb.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter allows Max hits per key in each fixed Window.
type RedisLimiter struct {
	Client rdb.UniversalClient
	Prefix string
	Max    int64
	Window time.Duration
	Now    func() time.Time
}

func NewRedisLimiter(client rdb.UniversalClient, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		Now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := l.Now().UTC().Truncate(l.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.Prefix, key, winStart.Unix())

	vals, err := hitScript.Run(ctx, l.Client, []string{redisKey}, l.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate: %w", err)
	}
	hits, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	if ttl <= 0 {
		// key vanished between calls; report what is left of the window
		ttl = winStart.Add(l.Window).Sub(l.Now().UTC())
	}

	res := Result{
		Allowed:     hits <= l.Max,
		Remaining:   max(l.Max-hits, 0),
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		// whole seconds, rounded up, for Retry-After
		res.RetryAfter = ttl.Round(time.Second)
		if res.RetryAfter < ttl {
			res.RetryAfter += time.Second
		}
	}
	return res, nil
}
