package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/veldt-io/cirrus/adapters"
)

// withRetry runs op with bounded exponential backoff. Only RateLimitError
// and TransientError are retried; everything else surfaces immediately.
// A provider-suggested backoff stretches the next wait when it is longer
// than the computed one.
func withRetry(ctx context.Context, maxRetries int, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 30 * time.Second

	var lastSuggested time.Duration
	policy := backoff.WithContext(backoff.WithMaxRetries(&suggestedBackoff{base: exp, suggested: &lastSuggested}, uint64(maxRetries)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &adapters.TransientError{Err: err}
		}
		if !adapters.Retryable(err) {
			return backoff.Permanent(err)
		}
		if d, ok := adapters.SuggestedBackoff(err); ok {
			lastSuggested = d
		} else {
			lastSuggested = 0
		}
		return err
	}, policy)
}

// suggestedBackoff stretches the base policy's wait to at least the
// provider-suggested delay from the last RateLimitError.
type suggestedBackoff struct {
	base      backoff.BackOff
	suggested *time.Duration
}

func (s *suggestedBackoff) NextBackOff() time.Duration {
	next := s.base.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if *s.suggested > next {
		return *s.suggested
	}
	return next
}

func (s *suggestedBackoff) Reset() {
	s.base.Reset()
}
