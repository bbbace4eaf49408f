package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/provider"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return &provider.APIError{Provider: "p", Status: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsTransientFailures(t *testing.T) {
	calls := 0
	transient := &provider.APIError{Provider: "p", Status: 500}
	err := retry(context.Background(), fastRetry(3), func() error {
		calls++
		return transient
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, transient)
}

func TestRetryDoesNotRetryRateLimit(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry(5), func() error {
		calls++
		return &provider.APIError{Provider: "p", Status: 429}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "rate-limit responses must not be retried")
}

func TestRetryDoesNotRetryValidationErrors(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry(5), func() error {
		calls++
		return &provider.APIError{Provider: "p", Status: 400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDoesNotRetryPlainErrors(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry(5), func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.0}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := retry(ctx, cfg, func() error {
		calls++
		return &provider.APIError{Provider: "p", Status: 500}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
