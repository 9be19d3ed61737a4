// Package retry runs a call-sending function with bounded, backed-off
// retries for Client.Signal sends.
package retry

import (
	stderrors "errors"
	"time"

	"github.com/gostdlib/base/context"
)

// Policy configures retry behavior for a Signal send.
type Policy struct {
	// MaxAttempts is the number of retries after the first attempt. 0 (the
	// zero value) means no retry — Do calls fn exactly once.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// Multiplier is the factor backoff grows by after each retry.
	Multiplier float64

	// Retryable decides whether err should be retried. If nil, IsRetryable
	// is used.
	Retryable func(err error) bool
}

// DefaultPolicy returns 3 retries, 100ms initial backoff, 5s max, 2x growth.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

// IsRetryable is the default Retryable func: everything is retryable except
// a context error, since a canceled or already-expired context won't succeed
// on a later attempt either.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
}

// Do calls fn, retrying with exponential backoff per policy while fn's error
// is retryable, up to policy.MaxAttempts additional attempts. It returns nil
// on the first success, the first non-retryable error immediately, or the
// last error once attempts are exhausted.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		return fn(ctx)
	}

	backoff := policy.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !policy.retryable(err) {
			return err
		}
		lastErr = err

		if attempt < policy.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * policy.Multiplier)
			if backoff > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			}
		}
	}
	return lastErr
}
