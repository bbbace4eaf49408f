package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbiterhq/arbiter/internal/core"
)

const sweepInterval = time.Minute

type memoryEntry struct {
	result    core.CompletionResult
	expiresAt time.Time
}

// Memory is an in-process completion cache with per-entry TTL, lazy
// expiry on read and a periodic sweep.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	stop chan struct{}
	once sync.Once
}

// NewMemory creates a memory cache. ttl <= 0 selects DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// sweep removes expired entries periodically so idle caches do not grow
// without bound between reads.
func (m *Memory) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for key, e := range m.entries {
				if now.After(e.expiresAt) {
					delete(m.entries, key)
					m.evictions.Add(1)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// Get returns the cached result for the request, or false on miss.
func (m *Memory) Get(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResult, bool) {
	key := Fingerprint(req)

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		m.evictions.Add(1)
		m.misses.Add(1)
		return nil, false
	}

	m.hits.Add(1)
	res := e.result
	res.Cached = true
	return &res, true
}

// Put stores a result under the request's fingerprint.
func (m *Memory) Put(ctx context.Context, req *core.CompletionRequest, res *core.CompletionResult) {
	if res == nil {
		return
	}
	key := Fingerprint(req)
	m.mu.Lock()
	m.entries[key] = memoryEntry{result: *res, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *Memory) deletePrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			m.evictions.Add(1)
		}
	}
}

// Invalidate drops every entry for a provider.
func (m *Memory) Invalidate(ctx context.Context, provider string) error {
	m.deletePrefix(providerPrefix(provider))
	return nil
}

// InvalidateModel drops every entry for a provider+model pair.
func (m *Memory) InvalidateModel(ctx context.Context, provider, model string) error {
	m.deletePrefix(keyPrefix(provider, model))
	return nil
}

// Clear drops all entries.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions.Add(int64(len(m.entries)))
	m.entries = make(map[string]memoryEntry)
	return nil
}

// Stats returns current counters.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	size := int64(len(m.entries))
	m.mu.RUnlock()
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Size:      size,
	}
}

// Close stops the sweep goroutine.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
