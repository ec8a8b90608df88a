package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "", 3, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	l.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		res, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(4), res.CurrentHits)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// other keys have their own window
	res, err = l.Allow(ctx, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// next window starts fresh
	now = now.Add(time.Minute)
	res, err = l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.CurrentHits)
}

func TestRedisLimiter_KeyLayoutAndWindowExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "", 1, time.Minute)
	now := time.Unix(600, 0)
	l.Now = func() time.Time { return now }
	ctx := context.Background()

	res, err := l.Allow(ctx, Key("/kakao", "1.2.3.4"))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, mr.Exists("rl:kakao:1.2.3.4:600"))
	assert.Equal(t, time.Minute, mr.TTL("rl:kakao:1.2.3.4:600"))
	assert.Equal(t, time.Minute, res.WindowTTL)

	res, err = l.Allow(ctx, Key("/kakao", "1.2.3.4"))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	// buckets are independent
	res, err = l.Allow(ctx, Key("/refresh", "1.2.3.4"))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// the counter expires with its window
	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists("rl:kakao:1.2.3.4:600"))
}

func TestRedisLimiter_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisLimiter(client, "", 1, time.Minute).Allow(context.Background(), "k")
	assert.ErrorContains(t, err, "rate:")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "kakao:1.2.3.4", Key("/kakao", "1.2.3.4"))
	assert.Equal(t, "kakao_authorize:::1", Key("/kakao/authorize", "::1"))
	assert.Equal(t, "logout:a_b", Key("logout", " a b "))
	assert.Equal(t, "_:_", Key("", ""))
}
