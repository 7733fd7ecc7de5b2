package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/pkg/apperr"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStoreWithClient(client, Config{TTL: time.Hour, Idle: 10 * time.Minute})
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func TestCreateAndLoad(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "ua=firefox;ip=10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.SessionID)
	assert.Equal(t, "user-1", rec.PrincipalID)

	loaded, err := store.Load(ctx, rec.SessionID, "ua=firefox;ip=10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, rec.SessionID, loaded.SessionID)
}

func TestLoadUnknownSession(t *testing.T) {
	_, store := newTestStore(t)

	_, err := store.Load(context.Background(), "nope", "fp")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestFingerprintMismatchRevokes(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp-original")
	require.NoError(t, err)

	_, err = store.Load(ctx, rec.SessionID, "fp-attacker")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// The session must be revoked even for the legitimate fingerprint
	_, err = store.Load(ctx, rec.SessionID, "fp-original")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestAbsoluteExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStoreWithClient(client, Config{TTL: 50 * time.Millisecond, Idle: time.Hour})
	defer store.Close()
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	_, err = store.Load(ctx, rec.SessionID, "fp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestIdleExpiryViaRedisTTL(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)

	// The key TTL is the idle window, not the absolute lifetime
	mr.FastForward(11 * time.Minute)

	_, err = store.Load(ctx, rec.SessionID, "fp")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestTouchExtendsIdle(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)

	mr.FastForward(8 * time.Minute)
	require.NoError(t, store.Touch(ctx, rec.SessionID))
	mr.FastForward(8 * time.Minute)

	// 16 minutes total but only 8 since the last touch
	loaded, err := store.Load(ctx, rec.SessionID, "fp")
	require.NoError(t, err)
	assert.True(t, loaded.LastSeenAt.After(rec.LastSeenAt))
}

func TestRotate(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)

	newID, err := store.Rotate(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, rec.SessionID, newID)

	// Old id is dead, new id works
	_, err = store.Load(ctx, rec.SessionID, "fp")
	require.Error(t, err)
	loaded, err := store.Load(ctx, newID, "fp")
	require.NoError(t, err)
	assert.Equal(t, "user-1", loaded.PrincipalID)
}

func TestRevokeAllFor(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	a, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)
	b, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)
	other, err := store.Create(ctx, "user-2", "fp")
	require.NoError(t, err)

	require.NoError(t, store.RevokeAllFor(ctx, "user-1"))

	_, err = store.Load(ctx, a.SessionID, "fp")
	require.Error(t, err)
	_, err = store.Load(ctx, b.SessionID, "fp")
	require.Error(t, err)

	// Other principals unaffected
	_, err = store.Load(ctx, other.SessionID, "fp")
	require.NoError(t, err)
}

func TestRevokeIsIdempotent(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, rec.SessionID))
	require.NoError(t, store.Revoke(ctx, rec.SessionID))
}
