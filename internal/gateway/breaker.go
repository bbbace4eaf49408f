// Package gateway routes completion requests to registered provider
// adapters, wrapping every call in per-provider resilience: a circuit
// breaker and a bounded retry policy.
package gateway

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// BreakerConfig configures a per-provider circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes it again.
	SuccessThreshold int

	// OpenWait is how long the circuit stays open before allowing trial
	// calls.
	OpenWait time.Duration

	// HalfOpenMaxCalls bounds concurrent trial calls while half-open.
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenWait:         30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Breaker is a per-provider circuit breaker. It holds its own mutable
// state behind a mutex; one instance is shared by all concurrent callers
// of the same provider.
type Breaker struct {
	mu       sync.Mutex
	provider string
	config   BreakerConfig

	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenCalls        int
	lastFailure          time.Time
	lastStateChange      time.Time
}

// NewBreaker creates a closed breaker for the given provider.
func NewBreaker(providerID string, config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultBreakerConfig().SuccessThreshold
	}
	if config.OpenWait <= 0 {
		config.OpenWait = DefaultBreakerConfig().OpenWait
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = DefaultBreakerConfig().HalfOpenMaxCalls
	}
	return &Breaker{
		provider:        providerID,
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Allow reports whether a call may proceed. When it returns false the
// caller must fail fast without touching the adapter.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(b.lastFailure) >= b.config.OpenWait {
			b.transition(CircuitHalfOpen)
			b.halfOpenCalls = 1
			return true
		}
		return false
	case CircuitHalfOpen:
		if b.halfOpenCalls >= b.config.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenCalls++
		return true
	}
	return true
}

// RecordSuccess notes a successful adapter call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.consecutiveSuccesses++

	if b.state == CircuitHalfOpen && b.consecutiveSuccesses >= b.config.SuccessThreshold {
		b.transition(CircuitClosed)
	}
}

// RecordFailure notes a failed adapter call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses = 0
	b.consecutiveFailures++
	b.lastFailure = time.Now()

	switch b.state {
	case CircuitClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure during trial calls reopens the circuit.
		b.transition(CircuitOpen)
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition changes state. Caller holds the mutex.
func (b *Breaker) transition(next CircuitState) {
	prev := b.state
	b.state = next
	b.lastStateChange = time.Now()

	switch next {
	case CircuitClosed:
		b.consecutiveFailures = 0
	case CircuitHalfOpen:
		b.halfOpenCalls = 0
		b.consecutiveSuccesses = 0
	}

	slog.Warn("Circuit breaker state change", "provider", b.provider, "from", prev, "to", next)
}
