package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbiterhq/arbiter/internal/core"
)

// Redis is a completion cache backed by a shared Redis instance, for
// deployments where several engine processes should share hits.
type Redis struct {
	client *redis.Client
	ttl    time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewRedis creates a Redis-backed cache. ttl <= 0 selects DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Get returns the cached result for the request, or false on miss.
// Read and decode failures degrade to a miss; a corrupted entry is
// dropped so it cannot poison later reads.
func (r *Redis) Get(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResult, bool) {
	key := Fingerprint(req)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Cache read failed", "error", &core.CacheError{Op: "get", Err: err})
		}
		r.misses.Add(1)
		return nil, false
	}

	var res core.CompletionResult
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("Dropping corrupted cache entry", "key", key, "error", &core.CacheError{Op: "decode", Err: err})
		r.client.Del(ctx, key)
		r.evictions.Add(1)
		r.misses.Add(1)
		return nil, false
	}

	r.hits.Add(1)
	res.Cached = true
	return &res, true
}

// Put stores a result under the request's fingerprint. Write failures
// are logged and ignored; they never fail the completion flow.
func (r *Redis) Put(ctx context.Context, req *core.CompletionRequest, res *core.CompletionResult) {
	if res == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("Cache encode failed", "error", &core.CacheError{Op: "encode", Err: err})
		return
	}
	if err := r.client.Set(ctx, Fingerprint(req), data, r.ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "error", &core.CacheError{Op: "set", Err: err})
	}
}

// deletePattern removes all keys matching pattern via SCAN.
func (r *Redis) deletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return &core.CacheError{Op: "invalidate", Err: err}
		}
		r.evictions.Add(1)
	}
	if err := iter.Err(); err != nil {
		return &core.CacheError{Op: "invalidate", Err: err}
	}
	return nil
}

// Invalidate drops every entry for a provider.
func (r *Redis) Invalidate(ctx context.Context, provider string) error {
	return r.deletePattern(ctx, providerPrefix(provider)+"*")
}

// InvalidateModel drops every entry for a provider+model pair.
func (r *Redis) InvalidateModel(ctx context.Context, provider, model string) error {
	return r.deletePattern(ctx, keyPrefix(provider, model)+"*")
}

// Clear drops all completion entries.
func (r *Redis) Clear(ctx context.Context) error {
	return r.deletePattern(ctx, "completion:*")
}

// Stats returns current counters. Size counts completion keys only.
func (r *Redis) Stats() Stats {
	var size int64
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	iter := r.client.Scan(ctx, 0, "completion:*", 100).Iterator()
	for iter.Next(ctx) {
		size++
	}
	return Stats{
		Hits:      r.hits.Load(),
		Misses:    r.misses.Load(),
		Evictions: r.evictions.Load(),
		Size:      size,
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
