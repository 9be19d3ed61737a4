package validate

import (
	"errors"
	"testing"

	"github.com/gostdlib/base/context"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		wantMsg string
	}{
		{
			name:    "message only",
			err:     NewError("value must be positive"),
			wantMsg: "validate: value must be positive",
		},
		{
			name:    "field and message",
			err:     NewFieldError("age", "must be at least 18"),
			wantMsg: `validate: field "age": must be at least 18`,
		},
	}

	for _, test := range tests {
		if got := test.err.Error(); got != test.wantMsg {
			t.Errorf("[%s]: got %q, want %q", test.name, got, test.wantMsg)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	noCause := NewError("test")
	if got := noCause.Unwrap(); got != ErrValidation {
		t.Errorf("Unwrap with no cause = %v, want ErrValidation", got)
	}

	cause := errors.New("underlying")
	withCause := &Error{Message: "test", Cause: cause}
	if got := withCause.Unwrap(); got != cause {
		t.Errorf("Unwrap with cause = %v, want %v", got, cause)
	}
}

func TestErrorIsErrValidation(t *testing.T) {
	err := NewError("bad payload")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("errors.Is(err, ErrValidation) = false, want true")
	}
}

func TestRegistryValidateRequest(t *testing.T) {
	called := false
	reg := NewRegistry().RegisterRequestFunc("orders.process", func(ctx context.Context, payload []byte) error {
		called = true
		if len(payload) == 0 {
			return NewError("empty payload")
		}
		return nil
	})

	ctx := t.Context()

	if err := reg.ValidateRequest(ctx, "orders.process", []byte("ok")); err != nil {
		t.Fatalf("ValidateRequest: %v", err)
	}
	if !called {
		t.Fatalf("registered validator was never called")
	}

	if err := reg.ValidateRequest(ctx, "orders.process", nil); err == nil {
		t.Fatalf("expected an error for an empty payload")
	}

	if err := reg.ValidateRequest(ctx, "unregistered.dest", []byte("anything")); err != nil {
		t.Fatalf("ValidateRequest for an unregistered destination: %v, want nil", err)
	}
}

func TestRegistryValidateResponse(t *testing.T) {
	reg := NewRegistry().RegisterResponse("orders.process", ValidatorFunc(func(ctx context.Context, payload []byte) error {
		if string(payload) == "bad" {
			return NewFieldError("status", "unrecognized")
		}
		return nil
	}))

	ctx := t.Context()

	if err := reg.ValidateResponse(ctx, "orders.process", []byte("good")); err != nil {
		t.Fatalf("ValidateResponse: %v", err)
	}
	if err := reg.ValidateResponse(ctx, "orders.process", []byte("bad")); err == nil {
		t.Fatalf("expected an error for a bad response payload")
	}
}

func TestRegistryNilAndEmptyAreNoOps(t *testing.T) {
	var reg *Registry
	ctx := t.Context()

	if err := reg.ValidateRequest(ctx, "orders.process", []byte("x")); err != nil {
		t.Errorf("nil Registry ValidateRequest = %v, want nil", err)
	}
	if err := reg.ValidateResponse(ctx, "orders.process", []byte("x")); err != nil {
		t.Errorf("nil Registry ValidateResponse = %v, want nil", err)
	}

	empty := NewRegistry()
	if err := empty.ValidateRequest(ctx, "orders.process", []byte("x")); err != nil {
		t.Errorf("empty Registry ValidateRequest = %v, want nil", err)
	}
}
