// Package client implements the client side of a call: RequestHandler holds
// one call's state (responses, deadline, terminal error) and ClientDispatcher
// routes inbound Envelopes to the right RequestHandler by CallID.
package client

import (
	"fmt"
	"time"

	stdsync "github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/envelope"
)

// DefaultKeepAliveWindow is the implicit deadline extension granted by each
// accepted response. An explicit KeepAlive moves the deadline to its own
// absolute time instead.
const DefaultKeepAliveWindow = 10 * time.Second

// ErrClosed reports that a RequestHandler has closed. GetNextResponse and
// GetResponses do not return it: once a handler has closed with no error
// (graceful end of stream or timeout) and its queue is empty, they return a
// nil error, which marks "no more responses," not a failure.
var ErrClosed = fmt.Errorf("client: request handler closed")

// RequestHandler holds the state of one outstanding call on the client:
// every response received so far, the (monotonically non-decreasing)
// deadline, and the first terminal condition (graceful end of stream, or an
// error) to reach it. It implements the RequestContext callback interface a
// ResponseContext is given on the server side of the same call.
type RequestHandler struct {
	mu stdsync.Mutex

	callID         envelope.CallID
	allowKeepAlive bool
	deadline       time.Time

	responses []*envelope.Envelope
	notify    chan struct{}

	err    error
	closed bool

	closeListeners []func()
	closeNotified  bool

	now func() time.Time
}

// New returns a RequestHandler for callID with an initial deadline of
// now+timeout. If allowKeepAlive is false, KeepAlive calls are ignored;
// AddResponse still extends the deadline by DefaultKeepAliveWindow, so with
// no responses the handler times out once the original deadline passes.
func New(callID envelope.CallID, allowKeepAlive bool, timeout time.Duration) *RequestHandler {
	return &RequestHandler{
		callID:         callID,
		allowKeepAlive: allowKeepAlive,
		deadline:       time.Now().Add(timeout),
		notify:         make(chan struct{}, 1),
		now:            time.Now,
	}
}

func (h *RequestHandler) wake() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// extendImplicit moves the deadline forward by DefaultKeepAliveWindow if
// that is later than the current deadline; deadlines never move backward.
// Unlike explicit KeepAlive, this implicit extension is not gated by
// allowKeepAlive: it is triggered by real response traffic, not a
// server-issued keep-alive control message.
func (h *RequestHandler) extendImplicit() {
	candidate := h.now().Add(DefaultKeepAliveWindow)
	if candidate.After(h.deadline) {
		h.deadline = candidate
	}
}

// AddResponse records one response envelope. It returns false without
// recording anything if the handler is already closed. A successful call
// extends the deadline by the implicit keep-alive window, mirroring the
// server's watchdog cadence: as long as responses keep arriving inside the
// window, the call never times out.
func (h *RequestHandler) AddResponse(env *envelope.Envelope) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.responses = append(h.responses, env)
	h.extendImplicit()
	h.wake()
	return true
}

// KeepAlive applies a server-issued deadline extension: untilMillis is an
// absolute epoch-millisecond deadline (the EXTEND_WAIT envelope's ReqTimeout
// property); the handler's deadline moves to max(deadline, untilMillis) and
// never backward. It is a no-op — not an error — when allowKeepAlive is
// false or the handler is already closed, per spec's divergence between
// allowKeepAlive true/false callers.
func (h *RequestHandler) KeepAlive(untilMillis int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || !h.allowKeepAlive || untilMillis <= 0 {
		return
	}
	until := time.UnixMilli(untilMillis)
	if until.After(h.deadline) {
		h.deadline = until
	}
	h.wake()
}

// EndOfStream closes the handler gracefully: no error, any buffered
// responses remain retrievable, and once they are drained retrieval calls
// return a nil response and a nil error. EndOfStream and NotifyError are mutually exclusive
// terminal events — whichever reaches the handler first wins; a second
// terminal call is a no-op.
func (h *RequestHandler) EndOfStream() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	h.notifyCloseListeners()
	h.wake()
}

// NotifyError closes the handler with a terminal error. As with EndOfStream,
// only the first terminal call (whichever of the two it is) takes effect.
func (h *RequestHandler) NotifyError(err error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.err = err
	h.mu.Unlock()
	h.notifyCloseListeners()
	h.wake()
}

// AddCloseListener registers fn to run exactly once when the handler
// transitions to closed, via EndOfStream, NotifyError, or an IsClosed-driven
// expiry. If the handler is already closed, fn runs inline.
func (h *RequestHandler) AddCloseListener(fn func()) {
	h.mu.Lock()
	if h.closed && h.closeNotified {
		h.mu.Unlock()
		fn()
		return
	}
	h.closeListeners = append(h.closeListeners, fn)
	h.mu.Unlock()
}

func (h *RequestHandler) notifyCloseListeners() {
	h.mu.Lock()
	if h.closeNotified {
		h.mu.Unlock()
		return
	}
	h.closeNotified = true
	listeners := h.closeListeners
	h.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// IsClosed reports whether the handler has reached a terminal state. If it
// has not, but its deadline has passed, IsClosed closes it gracefully
// before returning true: a timeout is not a server/user error, so waiters
// see a normal (nil, nil) end of stream rather than an error, per spec's
// "Timeout" error kind — checking for closure is also how expiry gets
// enforced; the handler runs no timer of its own, and ClientDispatcher.ReapTick
// calls IsClosed periodically so idle calls still expire.
func (h *RequestHandler) IsClosed(ctx context.Context) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return true
	}
	expired := h.now().After(h.deadline)
	h.mu.Unlock()

	if !expired {
		return false
	}
	h.EndOfStream()
	return true
}

// GetResponsesNoWait drains and returns every response currently queued,
// without blocking even if the handler is still open.
func (h *RequestHandler) GetResponsesNoWait() []*envelope.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.responses
	h.responses = nil
	return out
}

// GetNextResponse blocks until a response is available, the handler closes,
// or ctx is done. A nil, nil return means the handler closed gracefully
// (EndOfStream) with nothing left queued. A non-nil error return carries
// whatever NotifyError recorded, or ctx.Err() if the context was the reason
// this call returned.
func (h *RequestHandler) GetNextResponse(ctx context.Context) (*envelope.Envelope, error) {
	for {
		h.mu.Lock()
		if len(h.responses) > 0 {
			env := h.responses[0]
			h.responses = h.responses[1:]
			h.mu.Unlock()
			return env, nil
		}
		if h.closed {
			err := h.err
			h.mu.Unlock()
			return nil, err
		}
		h.mu.Unlock()

		if h.IsClosed(ctx) {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-h.notify:
		}
	}
}

// GetResponses blocks until the call reaches a terminal state, returning
// every response observed in order. A terminal error is returned alongside
// whatever responses arrived before it.
func (h *RequestHandler) GetResponses(ctx context.Context) ([]*envelope.Envelope, error) {
	var all []*envelope.Envelope
	for {
		env, err := h.GetNextResponse(ctx)
		if env != nil {
			all = append(all, env)
			continue
		}
		return all, err
	}
}

// WaitForEndOfStream blocks until the call reaches a terminal state,
// discarding any buffered responses, and returns nil for a graceful end of
// stream or the terminal error otherwise.
func (h *RequestHandler) WaitForEndOfStream(ctx context.Context) error {
	_, err := h.GetResponses(ctx)
	return err
}

// CallID returns the call this handler belongs to.
func (h *RequestHandler) CallID() envelope.CallID { return h.callID }
