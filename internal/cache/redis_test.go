package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	c := NewRedis(client, time.Minute)
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestRedisHitAndMiss(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	req := makeRequest("openai", "gpt-4o-mini", "hello")

	_, ok := c.Get(ctx, req)
	assert.False(t, ok)

	c.Put(ctx, req, makeResult("hi"))

	got, ok := c.Get(ctx, req)
	require.True(t, ok)
	assert.Equal(t, "hi", got.Text)
	assert.True(t, got.Cached)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
}

func TestRedisTTLExpiry(t *testing.T) {
	c, srv := newTestRedis(t)
	ctx := context.Background()

	req := makeRequest("openai", "gpt-4o-mini", "hello")
	c.Put(ctx, req, makeResult("hi"))

	srv.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, req)
	assert.False(t, ok)
}

func TestRedisCorruptEntryTreatedAsMiss(t *testing.T) {
	c, srv := newTestRedis(t)
	ctx := context.Background()

	req := makeRequest("openai", "gpt-4o-mini", "hello")
	key := Fingerprint(req)
	require.NoError(t, srv.Set(key, "{not json"))

	_, ok := c.Get(ctx, req)
	assert.False(t, ok)

	// The poisoned entry is dropped, not left to fail again.
	assert.False(t, srv.Exists(key))
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestRedisInvalidateProvider(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	openai := makeRequest("openai", "gpt-4o-mini", "a")
	anthropic := makeRequest("anthropic", "claude-sonnet-4-20250514", "a")
	c.Put(ctx, openai, makeResult("one"))
	c.Put(ctx, anthropic, makeResult("two"))

	require.NoError(t, c.Invalidate(ctx, "openai"))

	_, ok := c.Get(ctx, openai)
	assert.False(t, ok)
	_, ok = c.Get(ctx, anthropic)
	assert.True(t, ok)
}

func TestRedisInvalidateModel(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	mini := makeRequest("openai", "gpt-4o-mini", "a")
	full := makeRequest("openai", "gpt-4o", "a")
	c.Put(ctx, mini, makeResult("one"))
	c.Put(ctx, full, makeResult("two"))

	require.NoError(t, c.InvalidateModel(ctx, "openai", "gpt-4o-mini"))

	_, ok := c.Get(ctx, mini)
	assert.False(t, ok)
	_, ok = c.Get(ctx, full)
	assert.True(t, ok)
}

func TestRedisClear(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	c.Put(ctx, makeRequest("openai", "gpt-4o-mini", "a"), makeResult("one"))
	c.Put(ctx, makeRequest("anthropic", "claude-sonnet-4-20250514", "b"), makeResult("two"))

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, int64(0), c.Stats().Size)
}
