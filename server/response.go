// Package server implements the server side of a call: ResponseContext is
// the per-call handle a RequestSink uses to emit responses, and ServerProxy
// dispatches inbound Envelopes to registered sinks and forwards their
// ResponseContext calls back onto the wire.
package server

import (
	"fmt"
	"time"

	stdsync "github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/compress"
	"github.com/ymmah/messaging/envelope"
	"github.com/ymmah/messaging/fragment"
	"github.com/ymmah/messaging/transport"
	"github.com/ymmah/messaging/validate"
)

// MaxFragmentSize bounds the payload size ResponseContext.AddResponse sends
// unfragmented; larger payloads are split with fragment.Splitter.
const MaxFragmentSize = fragment.DefaultMaxFragmentSize

// ResponseContext is the callback surface a RequestSink uses to answer one
// call: zero or more AddResponse/KeepAlive calls followed by exactly one of
// EndOfStream or NotifyError. It implements the RequestContext interface
// spec.md exposes to user sink code.
type ResponseContext struct {
	mu stdsync.Mutex

	callID   envelope.CallID
	replyTo  envelope.Destination
	version  envelope.ProtocolVersion
	sender   transport.Sender

	closed   bool
	err      error
	lastSent time.Time

	codec       envelope.Codec
	splitter    fragment.Splitter
	compression envelope.Compression

	responseValidator validate.Validator

	closeListeners []func()
}

// newResponseContext is called by ServerProxy for each inbound Signal.
func newResponseContext(callID envelope.CallID, replyTo envelope.Destination, version envelope.ProtocolVersion, sender transport.Sender) *ResponseContext {
	return &ResponseContext{
		callID:  callID,
		replyTo: replyTo,
		version: version,
		sender:  sender,
	}
}

// withCompression sets the algorithm AddResponse applies to every payload it
// sends on this call. Called by ServerProxy right after construction, from
// its own WithCompression option.
func (rc *ResponseContext) withCompression(c envelope.Compression) *ResponseContext {
	rc.compression = c
	return rc
}

// withResponseValidator looks up destName's response Validator in reg, if
// any, and installs it to check every AddResponse payload. A nil reg (no
// WithValidators configured) or a destName with no registered response
// validator leaves AddResponse unchecked.
func (rc *ResponseContext) withResponseValidator(reg *validate.Registry, destName string) *ResponseContext {
	if reg == nil {
		return rc
	}
	rc.responseValidator = validate.ValidatorFunc(func(ctx context.Context, payload []byte) error {
		return reg.ValidateResponse(ctx, destName, payload)
	})
	return rc
}

func (rc *ResponseContext) send(ctx context.Context, env *envelope.Envelope) error {
	env.Version = rc.version
	return rc.sender.Send(ctx, env)
}

// AddResponse sends one response value for this call. It returns false,
// without sending anything, if the ResponseContext has already closed
// (EndOfStream/NotifyError already called, or the server is stopping).
// Payloads larger than MaxFragmentSize are split into SignalFragment
// envelopes followed by an EndOfFragmentedMessage terminator.
func (rc *ResponseContext) AddResponse(ctx context.Context, payload []byte) bool {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return false
	}
	rc.mu.Unlock()

	if rc.responseValidator != nil {
		if err := rc.responseValidator.Validate(ctx, payload); err != nil {
			return false
		}
	}

	payload, err := compress.Compress(rc.compression, payload)
	if err != nil {
		return false
	}

	responseID := envelope.ResponseID(fmt.Sprintf("%s-%d", rc.callID, time.Now().UnixNano()))

	if len(payload) <= MaxFragmentSize {
		env := envelope.New(envelope.TSignalResponse, rc.callID)
		env.ResponseID = responseID
		env.Payload = payload
		env.Compression = rc.compression
		if err := rc.send(ctx, env); err != nil {
			return false
		}
	} else {
		frags := rc.splitter.Split(rc.callID, responseID, payload, MaxFragmentSize)
		for _, f := range frags {
			f.Compression = rc.compression
			if err := rc.send(ctx, f); err != nil {
				return false
			}
		}
	}

	rc.mu.Lock()
	rc.lastSent = time.Now()
	rc.mu.Unlock()
	return true
}

// KeepAlive sends an ExtendWait watchdog message carrying untilMillis, an
// absolute epoch-millisecond deadline, as either the sink's own heartbeat or
// the automatic one ServerProxy emits when a sink goes quiet. It returns
// false without sending anything on an already-closed ResponseContext,
// mirroring AddResponse.
func (rc *ResponseContext) KeepAlive(ctx context.Context, untilMillis int64) bool {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return false
	}
	rc.mu.Unlock()

	env := envelope.New(envelope.TExtendWait, rc.callID)
	env.ReqTimeoutMillis = untilMillis
	if rc.send(ctx, env) != nil {
		return false
	}
	rc.mu.Lock()
	rc.lastSent = time.Now()
	rc.mu.Unlock()
	return true
}

// EndOfStream closes the call gracefully. EndOfStream and NotifyError are
// mutually exclusive terminal events; whichever is called first wins and the
// other becomes a no-op.
func (rc *ResponseContext) EndOfStream(ctx context.Context) {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	rc.mu.Unlock()

	rc.send(ctx, envelope.New(envelope.TStreamClosed, rc.callID))
	rc.fireCloseListeners()
}

// NotifyError closes the call with a terminal error, carried to the client
// as an Exception envelope.
func (rc *ResponseContext) NotifyError(ctx context.Context, err error) {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	rc.err = err
	rc.mu.Unlock()

	exc := envelope.New(envelope.TException, rc.callID)
	exc.Payload = []byte(err.Error())
	rc.send(ctx, exc)
	rc.fireCloseListeners()
}

// IsClosed reports whether the call has reached a terminal state (by either
// EndOfStream or NotifyError) or the server has closed it out from under the
// sink (see ServerProxy.Shutdown).
func (rc *ResponseContext) IsClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

// Err returns the terminal error NotifyError recorded, or nil for a call
// that closed via EndOfStream, forceClose, or that hasn't closed yet.
func (rc *ResponseContext) Err() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.err
}

// LastSentTime returns when this ResponseContext last sent anything
// (response or keep-alive). ServerProxy's watchdog uses this to decide
// whether an automatic ExtendWait is due.
func (rc *ResponseContext) LastSentTime() time.Time {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.lastSent
}

// forceClose is used by ServerProxy.Shutdown: it marks the ResponseContext
// closed without sending a terminal message, since the server stopping
// isn't a per-call error and there may be no connection left to send on.
func (rc *ResponseContext) forceClose() {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	rc.mu.Unlock()
	rc.fireCloseListeners()
}

func (rc *ResponseContext) onClose(fn func()) {
	rc.mu.Lock()
	rc.closeListeners = append(rc.closeListeners, fn)
	rc.mu.Unlock()
}

func (rc *ResponseContext) fireCloseListeners() {
	rc.mu.Lock()
	listeners := rc.closeListeners
	rc.closeListeners = nil
	rc.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
