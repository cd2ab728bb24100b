package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opuscart/basket/internal/basket"
)

// setupTestRedis creates a miniredis server and a Redis storage on it.
func setupTestRedis(t *testing.T, opts ...RedisOption) (*Redis, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	store := NewRedis(client, opts...)

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return store, mr, cleanup
}

func TestRedisLoadMissing(t *testing.T) {
	store, _, cleanup := setupTestRedis(t)
	defer cleanup()

	items, err := store.Load(context.Background(), basket.SessionID("nobody"))
	require.NoError(t, err)
	assert.Empty(t, items, "missing key loads as an empty basket")
}

func TestRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	sub := basket.SessionID("sess-1")

	require.NoError(t, store.Save(ctx, sub, fixtureItems(t)))
	assert.True(t, mr.Exists("basket:sess-1"))

	loaded, err := store.Load(ctx, sub)
	require.NoError(t, err)
	requireFixtureRoundTrip(t, loaded)
}

func TestRedisKeyPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr, cleanup := setupTestRedis(t, WithKeyPrefix("shop:basket"))
	defer cleanup()

	require.NoError(t, store.Save(ctx, basket.SessionID("sess-1"), fixtureItems(t)))
	assert.True(t, mr.Exists("shop:basket:sess-1"))
	assert.False(t, mr.Exists("basket:sess-1"))
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	store, mr, cleanup := setupTestRedis(t, WithTTL(30*time.Minute))
	defer cleanup()
	sub := basket.SessionID("sess-1")

	require.NoError(t, store.Save(ctx, sub, fixtureItems(t)))
	assert.Equal(t, 30*time.Minute, mr.TTL("basket:sess-1"))

	mr.FastForward(31 * time.Minute)
	items, err := store.Load(ctx, sub)
	require.NoError(t, err)
	assert.Empty(t, items, "an expired basket loads as empty")
}

func TestRedisCorruptedBlob(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set("basket:sess-1", "{not json"))

	_, err := store.Load(context.Background(), basket.SessionID("sess-1"))
	assert.Error(t, err)
}

func TestRedisConnectionFailure(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	mr.Close()

	_, err := store.Load(context.Background(), basket.SessionID("sess-1"))
	assert.Error(t, err, "connection failures propagate, they are not empty baskets")

	err = store.Save(context.Background(), basket.SessionID("sess-1"), fixtureItems(t))
	assert.Error(t, err)
}
