//go:build integration

package cache_test

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/cache"
	"github.com/dmitrymomot/storefront/pkg/redis"
)

func newTestRedisClient(t *testing.T) goredis.UniversalClient {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}

	ctx := context.Background()
	client, err := redis.Open(ctx, url, redis.WithRetry(1, 0))
	require.NoError(t, err, "failed to connect to Redis")

	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_GetSet(t *testing.T) {
	t.Parallel()

	client := newTestRedisClient(t)
	c := cache.NewRedis[product](client, nil, cache.WithPrefix("it-getset"))
	ctx := context.Background()
	t.Cleanup(func() { _ = c.Clear(ctx) })

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, cache.ErrNotFound)

	p := product{ID: "1", Name: "Apple"}
	require.NoError(t, c.Set(ctx, "p1", p, time.Minute))

	got, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, p, got)

	ok, err := c.Has(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Delete(ctx, "p1"))
	require.NoError(t, c.Delete(ctx, "p1"))

	ok, err = c.Has(ctx, "p1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedis_TTL(t *testing.T) {
	t.Parallel()

	client := newTestRedisClient(t)
	c := cache.NewRedis[string](client, nil,
		cache.WithPrefix("it-ttl"),
		cache.WithRedisDefaultTTL(100*time.Millisecond),
	)
	ctx := context.Background()
	t.Cleanup(func() { _ = c.Clear(ctx) })

	require.NoError(t, c.Set(ctx, "default", "v", 0))
	require.NoError(t, c.Set(ctx, "forever", "v", -1))

	time.Sleep(200 * time.Millisecond)

	_, err := c.Get(ctx, "default")
	require.ErrorIs(t, err, cache.ErrNotFound)
	_, err = c.Get(ctx, "forever")
	require.NoError(t, err)
}

func TestRedis_ClearKeepsOtherPrefixes(t *testing.T) {
	t.Parallel()

	client := newTestRedisClient(t)
	ctx := context.Background()

	a := cache.NewRedis[int](client, nil, cache.WithPrefix("it-clear-a"))
	b := cache.NewRedis[int](client, nil, cache.WithPrefix("it-clear-b"))
	t.Cleanup(func() { _ = b.Clear(ctx) })

	for i, key := range []string{"x", "y", "z"} {
		require.NoError(t, a.Set(ctx, key, i, time.Minute))
	}
	require.NoError(t, b.Set(ctx, "x", 9, time.Minute))

	require.NoError(t, a.Clear(ctx))

	ok, err := a.Has(ctx, "x")
	require.NoError(t, err)
	require.False(t, ok)

	v, err := b.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 9, v)
}

func TestQuery_RedisStore(t *testing.T) {
	t.Parallel()

	client := newTestRedisClient(t)
	ctx := context.Background()
	store := cache.NewRedis(client, cache.Bytes(), cache.WithPrefix("it-query"))
	t.Cleanup(func() { _ = store.Clear(ctx) })

	var calls atomic.Int64
	q := cache.NewQuery(store, cache.WithQueryTTL(time.Minute))

	for range 2 {
		p, err := fetchProduct(ctx, q, "5", &calls)
		require.NoError(t, err)
		require.Equal(t, "Apple 5", p.Name)
	}
	require.Equal(t, int64(1), calls.Load())

	// A second process sharing the store reads the payload without fetching.
	other := cache.NewQuery(store)
	_, err := fetchProduct(ctx, other, "5", &calls)
	require.NoError(t, err)
	require.Equal(t, int64(1), calls.Load())

	require.NoError(t, q.Invalidate(ctx, cache.IDTag("Products", "5")))
	ok, err := store.Has(ctx, "products/5")
	require.NoError(t, err)
	require.False(t, ok)
}
