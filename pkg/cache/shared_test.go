package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr())
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func TestRedisStoreRoundTrip(t *testing.T) {
	_, store := newTestRedis(t)
	ctx := context.Background()

	err := store.Set(ctx, "inspection:I1", []byte("payload"), Options{
		TTL:       time.Minute,
		Tags:      []string{"inspection:list"},
		EntityTag: "inspection:I1",
	})
	require.NoError(t, err)

	value, ttl, err := store.Get(ctx, "inspection:I1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisStoreMissReturnsNil(t *testing.T) {
	_, store := newTestRedis(t)

	value, _, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestRedisStoreTagInvalidation(t *testing.T) {
	_, store := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), Options{TTL: time.Minute, Tags: []string{"t"}}))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), Options{TTL: time.Minute, Tags: []string{"t"}}))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), Options{TTL: time.Minute}))

	require.NoError(t, store.InvalidateByTag(ctx, "t"))

	for _, key := range []string{"a", "b"} {
		value, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, value, "key %s should be gone", key)
	}
	value, _, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), value)
}

func TestEngineFallsBackToSharedTier(t *testing.T) {
	_, store := newTestRedis(t)
	ctx := context.Background()

	writer := NewEngine(store)
	reader := NewEngine(store)

	writer.Set(ctx, "component:C1", []byte("shared"), PolicyEntity.Options("component:C1"))

	// A different process (fresh local tier) sees the value via Redis
	got, ok := reader.Get(ctx, "component:C1")
	require.True(t, ok)
	assert.Equal(t, []byte("shared"), got)
}

func TestEngineDegradesWhenRedisDies(t *testing.T) {
	mr, store := newTestRedis(t)
	ctx := context.Background()

	e := NewEngine(store)
	e.Set(ctx, "k", []byte("v"), Options{TTL: time.Minute})

	mr.Close()

	// Hammer until the breaker opens and the engine notices
	for i := 0; i < 10; i++ {
		e.Set(ctx, "k2", []byte("v2"), Options{TTL: time.Minute})
	}
	assert.True(t, e.Degraded())

	// Local tier still serves
	got, ok := e.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}
