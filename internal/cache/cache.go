package cache

import (
	"context"
	"time"

	"github.com/arbiterhq/arbiter/internal/core"
)

// Completions is the completion cache contract consumed by the
// orchestration engine.
type Completions interface {
	// Get returns the cached result for the request, or false on miss.
	Get(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResult, bool)

	// Put stores a result under the request's fingerprint.
	Put(ctx context.Context, req *core.CompletionRequest, res *core.CompletionResult)

	// Invalidate drops every entry for a provider.
	Invalidate(ctx context.Context, provider string) error

	// InvalidateModel drops every entry for a provider+model pair.
	InvalidateModel(ctx context.Context, provider, model string) error

	// Clear drops all entries.
	Clear(ctx context.Context) error

	// Stats returns hit/miss/eviction counters and the current size.
	Stats() Stats

	// Close releases background resources.
	Close() error
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int64 `json:"size"`
}

// DefaultTTL applies when a cache is constructed with no TTL.
const DefaultTTL = 30 * time.Minute

// Noop is the disabled cache: every operation is a no-op and every Get
// is a miss that counts nothing.
type Noop struct{}

// NewNoop returns the disabled cache.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, *core.CompletionRequest) (*core.CompletionResult, bool) {
	return nil, false
}
func (*Noop) Put(context.Context, *core.CompletionRequest, *core.CompletionResult) {}
func (*Noop) Invalidate(context.Context, string) error                             { return nil }
func (*Noop) InvalidateModel(context.Context, string, string) error                { return nil }
func (*Noop) Clear(context.Context) error                                          { return nil }
func (*Noop) Stats() Stats                                                         { return Stats{} }
func (*Noop) Close() error                                                         { return nil }
