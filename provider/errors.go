package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// APIError represents a non-2xx response from a provider API.
type APIError struct {
	// Provider is the name of the provider that returned the error.
	Provider string

	// Status is the HTTP status code.
	Status int

	// Message is the provider-supplied error body, truncated.
	Message string

	// RetryAfter is the provider-advertised cooldown for 429 responses.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.Status, e.Message)
}

// RateLimited reports whether this is an explicit rate-limit response.
func (e *APIError) RateLimited() bool {
	return e.Status == 429
}

// Transient reports whether the error is safe to retry.
func (e *APIError) Transient() bool {
	return e.Status == 408 || e.Status >= 500
}

// IsTransient classifies an adapter error as retryable: server-side API
// failures, timeouts, and connection errors. Validation and rate-limit
// responses are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Connection-level failures surface as *net.OpError via url.Error.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsRateLimited reports whether err is an explicit rate-limit response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}
