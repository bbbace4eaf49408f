package core

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports malformed or rejected input. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown debate, round, participant or response.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound builds a NotFoundError for the given entity kind and id.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ProviderNotFoundError reports a completion request naming an unregistered
// provider id. No network call is attempted.
type ProviderNotFoundError struct {
	Provider string
}

func (e *ProviderNotFoundError) Error() string {
	return "provider not found: " + e.Provider
}

// ProviderUnavailableError reports an open circuit or exhausted retries.
type ProviderUnavailableError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s unavailable: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s unavailable: %s", e.Provider, e.Reason)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// RateLimitError reports an explicit rate-limit response from a provider.
// Rate limits are surfaced to the caller, never retried by the wrapper.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s rate limit exceeded, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s rate limit exceeded", e.Provider)
}

// StateTransitionError reports an illegal lifecycle event for the current
// debate status. The status is left unchanged.
type StateTransitionError struct {
	From  DebateStatus
	Event string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: event %s in state %s", e.Event, e.From)
}

// CacheError reports a non-fatal cache failure. Callers treat it as a miss.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// TransientError wraps a provider failure that is safe to retry, such as a
// timeout or connection error.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a missing-entity failure.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsRateLimit reports whether err is an explicit rate-limit response.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
