package adapters

import (
	"errors"
	"fmt"
	"time"
)

// AuthError means the credential was rejected or has expired.
// Not retryable; surfaced to the caller as the run outcome.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError means the provider throttled the call. Retryable;
// RetryAfter carries the provider's suggested backoff when it gave one.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError covers network failures and deadline overruns. Retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NotFoundError means the named entity no longer exists at the provider.
// Non-retryable for that call; never aborts a batch.
type NotFoundError struct {
	NativeID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("instance %s not found", e.NativeID)
}

// UnsupportedError means the capability is not available for this
// provider or instance family. Degrades the capability, never the sync.
type UnsupportedError struct {
	Provider string
	Op       string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s not supported", e.Provider, e.Op)
}

// Retryable reports whether err is worth retrying with backoff.
func Retryable(err error) bool {
	var rle *RateLimitError
	var te *TransientError
	return errors.As(err, &rle) || errors.As(err, &te)
}

// SuggestedBackoff returns the provider-suggested delay, if err carries one.
func SuggestedBackoff(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsUnsupported reports whether err is an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Kind labels err with its taxonomy bucket, for metrics and logs.
func Kind(err error) string {
	switch {
	case IsAuth(err):
		return "auth"
	case IsNotFound(err):
		return "not_found"
	case IsUnsupported(err):
		return "unsupported"
	default:
		var rle *RateLimitError
		if errors.As(err, &rle) {
			return "rate_limit"
		}
		var te *TransientError
		if errors.As(err, &te) {
			return "transient"
		}
		return "other"
	}
}
