package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()

	_, ok := e.Get(ctx, "inspection:I1")
	assert.False(t, ok)

	e.Set(ctx, "inspection:I1", []byte(`{"id":"I1"}`), PolicyEntity.Options("inspection:I1"))

	got, ok := e.Get(ctx, "inspection:I1")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"id":"I1"}`), got)

	e.Delete(ctx, "inspection:I1")
	_, ok = e.Get(ctx, "inspection:I1")
	assert.False(t, ok)
}

func TestExpiryIsAMiss(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()

	e.Set(ctx, "k", []byte("v"), Options{TTL: 20 * time.Millisecond})
	_, ok := e.Get(ctx, "k")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = e.Get(ctx, "k")
	assert.False(t, ok, "expired entries must read as misses")
}

func TestInvalidateByTag(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()

	e.Set(ctx, "inspection:list:fp1", []byte("a"), PolicyDynamic.Options("", "inspection:list"))
	e.Set(ctx, "inspection:list:fp2", []byte("b"), PolicyDynamic.Options("", "inspection:list"))
	e.Set(ctx, "component:C1", []byte("c"), PolicyEntity.Options("component:C1"))

	e.InvalidateByTag(ctx, "inspection:list")

	_, ok := e.Get(ctx, "inspection:list:fp1")
	assert.False(t, ok)
	_, ok = e.Get(ctx, "inspection:list:fp2")
	assert.False(t, ok)
	// Untagged entries survive
	_, ok = e.Get(ctx, "component:C1")
	assert.True(t, ok)
}

func TestInvalidateEntitySweepsListTags(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()

	e.Set(ctx, "inspection:I1", []byte("entity"), PolicyEntity.Options("inspection:I1"))
	e.Set(ctx, "inspection:list:fp1", []byte("list"), PolicyDynamic.Options("", "inspection:list"))
	e.Set(ctx, "inspection:status:scheduled", []byte("slice"),
		PolicyDynamic.Options("", "inspection:status:scheduled"))
	e.Set(ctx, "inspection:category:weld", []byte("cat"),
		PolicyDynamic.Options("", "inspection:category:weld"))
	e.Set(ctx, "customer:C1", []byte("other"), PolicyEntity.Options("customer:C1"))

	e.InvalidateEntity(ctx, "inspection:I1")

	for _, key := range []string{
		"inspection:I1",
		"inspection:list:fp1",
		"inspection:status:scheduled",
		"inspection:category:weld",
	} {
		_, ok := e.Get(ctx, key)
		assert.False(t, ok, "key %s should be invalidated", key)
	}

	// Other resources untouched
	_, ok := e.Get(ctx, "customer:C1")
	assert.True(t, ok)
}

func TestSetReplacesTags(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()

	e.Set(ctx, "k", []byte("v1"), Options{TTL: time.Minute, Tags: []string{"old"}})
	e.Set(ctx, "k", []byte("v2"), Options{TTL: time.Minute, Tags: []string{"new"}})

	// Invalidating the stale tag must not touch the rewritten entry
	e.InvalidateByTag(ctx, "old")
	got, ok := e.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)

	e.InvalidateByTag(ctx, "new")
	_, ok = e.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLen(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()

	assert.Equal(t, 0, e.Len())
	e.Set(ctx, "a", []byte("1"), Options{TTL: time.Minute})
	e.Set(ctx, "b", []byte("2"), Options{TTL: time.Minute})
	assert.Equal(t, 2, e.Len())
}
