// Package errors provides the error taxonomy for the session runtime: a
// Category per spec error kind (transport, protocol, fragmentation, timeout,
// sink) wrapping github.com/gostdlib/base/errors the way languages/go/errors
// does for the rest of this module.
package errors

import (
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/errors"
)

//go:generate stringer -type=Category -linecomment

// Category classifies why a call failed, per the five error kinds this
// runtime distinguishes.
type Category uint32

func (c Category) Category() string { return c.String() }

const (
	// CatUnknown should never be returned; its presence indicates a switch
	// that didn't cover a case.
	CatUnknown Category = Category(0) // Unknown
	// CatTransport covers send/receive failures on the underlying Transport:
	// broken connections, failed sends while a Session is ACTIVE.
	CatTransport Category = Category(1) // Transport
	// CatProtocol covers malformed envelopes, version mismatches, and other
	// violations of the wire contract that aren't a transport failure.
	CatProtocol Category = Category(2) // Protocol
	// CatFragmentation covers reassembly failures: digest mismatch, a
	// terminator naming an index that never arrived, and similar.
	CatFragmentation Category = Category(3) // Fragmentation
	// CatTimeout covers a call's deadline elapsing without a terminal
	// response.
	CatTimeout Category = Category(4) // Timeout
	// CatSink covers an error or panic raised by user RequestSink code.
	CatSink Category = Category(5) // Sink
)

//go:generate stringer -type=Type -linecomment

// Type narrows a Category to a more specific condition.
type Type uint16

func (t Type) Type() string { return t.String() }

const (
	TypeUnknown Type = Type(0) // Unknown

	// Transport
	TypeConnClosed    Type = Type(100) // ConnClosed
	TypeSendFailed    Type = Type(101) // SendFailed
	TypeReconnectFail Type = Type(102) // ReconnectFail

	// Protocol
	TypeMalformedEnvelope  Type = Type(200) // MalformedEnvelope
	TypeVersionMismatch    Type = Type(201) // VersionMismatch
	TypeUnexpectedMsgType  Type = Type(202) // UnexpectedMsgType
	TypeValidationFailed   Type = Type(203) // ValidationFailed
	TypeRateLimited        Type = Type(204) // RateLimited

	// Fragmentation
	TypeDigestMismatch  Type = Type(300) // DigestMismatch
	TypeMissingFragment Type = Type(301) // MissingFragment

	// Timeout
	TypeDeadlineExceeded Type = Type(400) // DeadlineExceeded
	TypeCanceled         Type = Type(401) // Canceled

	// Sink
	TypeSinkPanic Type = Type(500) // SinkPanic
	TypeSinkError Type = Type(501) // SinkError
)

// LogAttrer mirrors github.com/gostdlib/base/errors.LogAttrer for errors that
// contribute structured logging attributes.
type LogAttrer = errors.LogAttrer

// Error is this module's error type; it implements github.com/gostdlib/base/errors.Error.
type Error = errors.Error

// EOption is an optional argument to E.
type EOption = errors.EOption

// WithStackTrace attaches a stack trace to the error. Reserved for the rare
// cases worth the cost; most call sites don't need it.
func WithStackTrace() EOption {
	return errors.WithStackTrace()
}

// WithCallNum adjusts the stack frame E() reports as the error's origin,
// needed by any further wrapper built on top of E().
func WithCallNum(i int) EOption {
	return errors.WithCallNum(i)
}

// E constructs an Error with category c and type t wrapping msg.
func E(ctx context.Context, c Category, t Type, msg error, options ...EOption) Error {
	opts := make([]EOption, 0, len(options)+1)
	opts = append(opts, WithCallNum(2))
	opts = append(opts, options...)
	return errors.E(ctx, c, t, msg, opts...)
}
