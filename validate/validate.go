// Package validate lets a server or client run pluggable validators over a
// call's payload before it is dispatched to a sink or sent on the wire.
package validate

import (
	"errors"
	"fmt"

	"github.com/gostdlib/base/context"
)

// ErrValidation is the sentinel every Error wraps, so callers can test for
// any validation failure with errors.Is(err, validate.ErrValidation).
var ErrValidation = errors.New("validate: validation error")

// Error wraps a validation failure with an optional field name.
type Error struct {
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validate: field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validate: %s", e.Message)
}

func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrValidation
}

// NewError returns a validation Error with no field name.
func NewError(message string) *Error {
	return &Error{Message: message}
}

// NewFieldError returns a validation Error naming the field that failed.
func NewFieldError(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// Validator checks a payload and returns an error if it's invalid.
type Validator interface {
	Validate(ctx context.Context, payload []byte) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, payload []byte) error

func (f ValidatorFunc) Validate(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// Registry maps a destination name to the Validator that checks its
// request payloads (inbound Signals, on the server) and its response
// payloads (outbound AddResponse calls, on the server). Unlike
// serviceconfig's pattern matching, lookup here is an exact destination-name
// match: a validator is a property of one concrete destination, not a whole
// namespace of them.
type Registry struct {
	request  map[string]Validator
	response map[string]Validator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		request:  make(map[string]Validator),
		response: make(map[string]Validator),
	}
}

// RegisterRequest installs v to check every inbound Signal payload addressed
// to destName.
func (r *Registry) RegisterRequest(destName string, v Validator) *Registry {
	r.request[destName] = v
	return r
}

// RegisterResponse installs v to check every payload a ResponseContext for
// destName sends via AddResponse.
func (r *Registry) RegisterResponse(destName string, v Validator) *Registry {
	r.response[destName] = v
	return r
}

// RegisterRequestFunc is RegisterRequest for a plain function.
func (r *Registry) RegisterRequestFunc(destName string, f func(ctx context.Context, payload []byte) error) *Registry {
	return r.RegisterRequest(destName, ValidatorFunc(f))
}

// RegisterResponseFunc is RegisterResponse for a plain function.
func (r *Registry) RegisterResponseFunc(destName string, f func(ctx context.Context, payload []byte) error) *Registry {
	return r.RegisterResponse(destName, ValidatorFunc(f))
}

// ValidateRequest runs destName's request Validator, if any, returning nil
// when none is registered (and on a nil Registry).
func (r *Registry) ValidateRequest(ctx context.Context, destName string, payload []byte) error {
	if r == nil {
		return nil
	}
	v, ok := r.request[destName]
	if !ok {
		return nil
	}
	return v.Validate(ctx, payload)
}

// ValidateResponse runs destName's response Validator, if any, returning nil
// when none is registered (and on a nil Registry).
func (r *Registry) ValidateResponse(ctx context.Context, destName string, payload []byte) error {
	if r == nil {
		return nil
	}
	v, ok := r.response[destName]
	if !ok {
		return nil
	}
	return v.Validate(ctx, payload)
}
