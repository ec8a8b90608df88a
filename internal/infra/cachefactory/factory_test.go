package cachefactory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/userauth/internal/cache"
	cmem "github.com/dropDatabas3/userauth/internal/cache/memory"
	credis "github.com/dropDatabas3/userauth/internal/cache/redis"
)

func TestOpen_DefaultsToMemory(t *testing.T) {
	for _, kind := range []string{"", "memory", " Memory "} {
		c, err := Open(Config{Kind: kind}, nil)
		require.NoError(t, err, kind)
		assert.IsType(t, &cmem.Mem{}, c)
	}
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := Open(Config{Kind: "redis", Prefix: "ua:state:", DefaultTTL: time.Minute}, client)
	require.NoError(t, err)
	assert.IsType(t, &credis.Cache{}, c)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "abc", "/home", 0))
	assert.True(t, mr.Exists("ua:state:abc"))
	assert.Equal(t, time.Minute, mr.TTL("ua:state:abc"))

	v, err := c.Take(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "/home", v)
	_, err = c.Take(ctx, "abc")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	// the client stays usable after the cache is closed
	require.NoError(t, c.Close())
	require.NoError(t, client.Ping(ctx).Err())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(Config{Kind: "redis"}, nil)
	assert.ErrorIs(t, err, ErrNoRedisClient)

	_, err = Open(Config{Kind: "memcached"}, nil)
	assert.ErrorContains(t, err, `unsupported kind "memcached"`)
}
