package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/gostdlib/base/context"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.InitialBackoff != 100*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 100ms", p.InitialBackoff)
	}
	if p.MaxBackoff != 5*time.Second {
		t.Errorf("MaxBackoff = %v, want 5s", p.MaxBackoff)
	}
	if p.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", p.Multiplier)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "generic transport error is retryable", err: errors.New("connection reset"), want: true},
		{name: "context canceled is not retryable", err: context.Canceled, want: false},
		{name: "context deadline exceeded is not retryable", err: context.DeadlineExceeded, want: false},
	}

	for _, test := range tests {
		if got := IsRetryable(test.err); got != test.want {
			t.Errorf("[%s]: got %v, want %v", test.name, got, test.want)
		}
	}
}

func TestDoNoRetry(t *testing.T) {
	policy := Policy{MaxAttempts: 0}
	ctx := t.Context()
	calls := 0

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2.0}
	ctx := t.Context()
	calls := 0

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2.0}
	ctx := t.Context()
	calls := 0

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2.0}
	ctx := t.Context()
	calls := 0

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		return errors.New("persistent")
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4 (original + 3 retries)", calls)
	}
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2.0}
	ctx := t.Context()
	calls := 0

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		return context.Canceled
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (context errors are not retryable)", calls)
	}
}

func TestDoCustomRetryable(t *testing.T) {
	policy := Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
		Retryable: func(err error) bool {
			return err.Error() == "custom-retryable"
		},
	}
	ctx := t.Context()
	calls := 0

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("custom-retryable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoContextCanceledMidRetry(t *testing.T) {
	policy := Policy{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond, MaxBackoff: 200 * time.Millisecond, Multiplier: 2.0}
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("unavailable")
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got err = %v, want context.Canceled", err)
	}
}
