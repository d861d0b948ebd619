package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veldt-io/cirrus/adapters"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, func() error {
		attempts++
		if attempts < 3 {
			return &adapters.TransientError{Err: errors.New("connection reset")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryDoesNotRetryAuthErrors(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, func() error {
		attempts++
		return &adapters.AuthError{Provider: "aws", Err: errors.New("expired")}
	})
	if !adapters.IsAuth(err) {
		t.Fatalf("withRetry() error = %v, want AuthError", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, auth errors must not retry", attempts)
	}
}

func TestWithRetryDoesNotRetryNotFound(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, func() error {
		attempts++
		return &adapters.NotFoundError{NativeID: "i-001"}
	})
	if !adapters.IsNotFound(err) {
		t.Fatalf("withRetry() error = %v, want NotFoundError", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, not-found must not retry", attempts)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 2, func() error {
		attempts++
		return &adapters.RateLimitError{Err: errors.New("throttled")}
	})
	if !adapters.Retryable(err) {
		t.Fatalf("withRetry() error = %v, want RateLimitError", err)
	}
	// Budget is retries, not attempts: 1 initial + 2 retries.
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryMapsDeadlineToTransient(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 1, func() error {
		attempts++
		return context.DeadlineExceeded
	})
	var te *adapters.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("withRetry() error = %v, want TransientError", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, deadline overruns must retry", attempts)
	}
}

func TestWithRetryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, 5, func() error {
		return &adapters.TransientError{Err: errors.New("flaky")}
	})
	if err == nil {
		t.Fatal("withRetry() should fail under a cancelled context")
	}
}

func TestSuggestedBackoffStretchesWait(t *testing.T) {
	suggested := 2 * time.Second
	base := &fixedBackOff{d: 10 * time.Millisecond}
	policy := &suggestedBackoff{base: base, suggested: &suggested}

	if got := policy.NextBackOff(); got != suggested {
		t.Errorf("NextBackOff() = %v, want provider-suggested %v", got, suggested)
	}

	suggested = 0
	if got := policy.NextBackOff(); got != base.d {
		t.Errorf("NextBackOff() = %v, want base %v", got, base.d)
	}
}

type fixedBackOff struct{ d time.Duration }

func (f *fixedBackOff) NextBackOff() time.Duration { return f.d }
func (f *fixedBackOff) Reset()                     {}
