package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/core"
)

func makeRequest(provider, model, prompt string) *core.CompletionRequest {
	return &core.CompletionRequest{
		Provider:    provider,
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   256,
		Temperature: 0.5,
	}
}

func makeResult(text string) *core.CompletionResult {
	return &core.CompletionResult{
		Text:     text,
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Usage:    core.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
	}
}

func TestMemoryHitAndMiss(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	req := makeRequest("openai", "gpt-4o-mini", "hello")

	_, ok := m.Get(ctx, req)
	assert.False(t, ok)

	m.Put(ctx, req, makeResult("hi"))

	got, ok := m.Get(ctx, req)
	require.True(t, ok)
	assert.Equal(t, "hi", got.Text)
	assert.True(t, got.Cached)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
}

func TestMemoryReturnsCopy(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	req := makeRequest("openai", "gpt-4o-mini", "hello")
	m.Put(ctx, req, makeResult("original"))

	first, ok := m.Get(ctx, req)
	require.True(t, ok)
	first.Text = "mutated"

	second, ok := m.Get(ctx, req)
	require.True(t, ok)
	assert.Equal(t, "original", second.Text)
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory(10 * time.Millisecond)
	defer m.Close()
	ctx := context.Background()

	req := makeRequest("openai", "gpt-4o-mini", "hello")
	m.Put(ctx, req, makeResult("hi"))

	time.Sleep(20 * time.Millisecond)

	_, ok := m.Get(ctx, req)
	assert.False(t, ok)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(0), stats.Size)
}

func TestMemoryInvalidateProvider(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	openai := makeRequest("openai", "gpt-4o-mini", "a")
	anthropic := makeRequest("anthropic", "claude-sonnet-4-20250514", "a")
	m.Put(ctx, openai, makeResult("one"))
	m.Put(ctx, anthropic, makeResult("two"))

	require.NoError(t, m.Invalidate(ctx, "openai"))

	_, ok := m.Get(ctx, openai)
	assert.False(t, ok)
	_, ok = m.Get(ctx, anthropic)
	assert.True(t, ok)
}

func TestMemoryInvalidateModel(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	mini := makeRequest("openai", "gpt-4o-mini", "a")
	full := makeRequest("openai", "gpt-4o", "a")
	m.Put(ctx, mini, makeResult("one"))
	m.Put(ctx, full, makeResult("two"))

	require.NoError(t, m.InvalidateModel(ctx, "openai", "gpt-4o-mini"))

	_, ok := m.Get(ctx, mini)
	assert.False(t, ok)
	_, ok = m.Get(ctx, full)
	assert.True(t, ok)
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	m.Put(ctx, makeRequest("openai", "gpt-4o-mini", "a"), makeResult("one"))
	m.Put(ctx, makeRequest("openai", "gpt-4o-mini", "b"), makeResult("two"))

	require.NoError(t, m.Clear(ctx))

	stats := m.Stats()
	assert.Equal(t, int64(0), stats.Size)
	assert.Equal(t, int64(2), stats.Evictions)
}

func TestNoopAlwaysMisses(t *testing.T) {
	n := NewNoop()
	ctx := context.Background()

	req := makeRequest("openai", "gpt-4o-mini", "a")
	n.Put(ctx, req, makeResult("one"))

	_, ok := n.Get(ctx, req)
	assert.False(t, ok)
	assert.Equal(t, Stats{}, n.Stats())
}
