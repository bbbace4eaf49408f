package gateway

import (
	"context"
	"time"

	"github.com/arbiterhq/arbiter/provider"
)

// RetryConfig bounds retries of transient provider failures. Validation
// errors and rate-limit responses are never retried.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts. 1.0 gives fixed delay.
	Multiplier float64
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// retry runs fn up to MaxAttempts times, backing off between attempts.
// Only errors classified transient by the provider package are retried;
// everything else is returned immediately.
func retry(ctx context.Context, config RetryConfig, fn func() error) error {
	config = config.normalized()

	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !provider.IsTransient(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return err
}
