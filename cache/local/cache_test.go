package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "battle:state:1", `{"phase":"INTRO"}`, 0))
	v, err := c.Get(ctx, "battle:state:1")
	require.NoError(t, err)
	assert.Equal(t, `{"phase":"INTRO"}`, v)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl_key", "val", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpire(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Expire(ctx, "nope", time.Second), ErrNotFound)
	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Expire(ctx, "k", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGCSweepsExpiredKeys(t *testing.T) {
	c, err := NewCache(Config{GCInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Set(context.Background(), "k", "v", time.Millisecond))

	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.kv) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDelRemovesEveryKind(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.HSet(ctx, "h", "f", "v"))
	require.NoError(t, c.RPush(ctx, "l", "a"))

	require.NoError(t, c.Del(ctx, "k", "h", "l"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	all, _ := c.HGetAll(ctx, "h")
	assert.Empty(t, all)
	n, _ := c.LLen(ctx, "l")
	assert.Zero(t, n)
}

func TestSetNX(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "battle:player:7", "session-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "battle:player:7", "session-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "already held")

	v, _ := c.Get(ctx, "battle:player:7")
	assert.Equal(t, "session-a", v)
}

func TestSetNXAfterExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_, _ = c.SetNX(ctx, "lock", "a", 5*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	ok, err := c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHash(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "h", "f1", "v1"))
	require.NoError(t, c.HSet(ctx, "h", "f2", "v2"))

	v, err := c.HGet(ctx, "h", "f1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	all, err := c.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, all)

	all["f3"] = "mutated"
	again, _ := c.HGetAll(ctx, "h")
	assert.Len(t, again, 2, "HGetAll returns a copy")

	require.NoError(t, c.HDel(ctx, "h", "f1"))
	_, err = c.HGet(ctx, "h", "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListQueue(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.RPush(ctx, "q", "a", "b"))
	require.NoError(t, c.RPush(ctx, "q", "c"))
	n, err := c.LLen(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	items, err := c.LRange(ctx, "q", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)
	items, _ = c.LRange(ctx, "q", 1, 1)
	assert.Equal(t, []string{"b"}, items)
	items, _ = c.LRange(ctx, "q", 5, -1)
	assert.Empty(t, items)

	for _, want := range []string{"a", "b", "c"} {
		v, err := c.LPop(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err = c.LPop(ctx, "q")
	assert.ErrorIs(t, err, ErrNotFound)
}
