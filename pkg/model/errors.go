package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
	// ErrValidation is returned when required input is missing or malformed.
	// Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateRequest marks an idempotent replay. Callers surface it as success.
	ErrDuplicateRequest = errors.New("request already processed")
	// ErrUpstreamUnavailable is returned when the search index is unreachable,
	// timed out, or short-circuited by the breaker.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrConditionalWriteRejected is returned when a conditional store write
	// does not match its precondition.
	ErrConditionalWriteRejected = errors.New("conditional write rejected")
	// ErrTransient is returned for genuine store, queue or index failures
	ErrTransient = errors.New("transient infrastructure error")
	// ErrSecretAccess is returned when credentials cannot be fetched
	ErrSecretAccess = errors.New("secret access failed")
	// ErrCanceled is returned when the operation is canceled by the client
	ErrCanceled = errors.New("operation canceled")
)

// WrapError annotates err with a sentinel so errors.Is matches both.
// Context cancellation is always reported as ErrCanceled.
func WrapError(sentinel error, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if IsCanceled(err) {
		return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrCanceled, err)
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), sentinel, err)
}

// Validationf builds an ErrValidation with a descriptive message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsCanceled returns true if the error is due to context cancellation or deadline exceeded.
// It checks both direct context errors and wrapped errors (e.g., from MongoDB driver).
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrCanceled) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context canceled") || strings.Contains(errStr, "context deadline exceeded")
}

// IsRetryable reports whether a failure should go back to the queue for redelivery.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConditionalWriteRejected) || errors.Is(err, ErrDuplicateRequest) {
		return false
	}
	return true
}
