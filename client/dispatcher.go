package client

import (
	"fmt"

	stdsync "github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/compress"
	"github.com/ymmah/messaging/envelope"
	msgerrors "github.com/ymmah/messaging/errors"
	"github.com/ymmah/messaging/fragment"
)

// ClientDispatcher routes inbound Envelopes, delivered one at a time off a
// single receiver goroutine, to the RequestHandler registered for the
// envelope's CallID. RequestHandler's own methods are internally
// thread-safe, so dispatch itself needs no locking beyond the mutex that
// guards the registry maps and the fragment Reassembler;
// this mirrors rpc/client/client.go's single-reader, fan-out-by-id shape.
type ClientDispatcher struct {
	mu       stdsync.Mutex
	handlers map[envelope.CallID]*RequestHandler

	channelWaiters map[envelope.CallID]chan struct{}

	reassembler *fragment.Reassembler
}

// NewDispatcher returns a ClientDispatcher with no handlers registered.
func NewDispatcher() *ClientDispatcher {
	return &ClientDispatcher{
		handlers:       map[envelope.CallID]*RequestHandler{},
		channelWaiters: map[envelope.CallID]chan struct{}{},
		reassembler:    fragment.NewReassembler(),
	}
}

// awaitChannelSetup registers a one-shot wait for the ChannelSetup ack of a
// channel-upload request for callID, returning a channel that receives once
// OnEnvelope observes it. Callers register before sending the request, so a
// fast ack is not missed. Client.Signal's large-payload path
// uses this to hold off streaming fragments until the server has the upload
// tracked.
func (d *ClientDispatcher) awaitChannelSetup(callID envelope.CallID) <-chan struct{} {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.channelWaiters[callID] = ch
	d.mu.Unlock()
	return ch
}

// Register associates h with its CallID so future inbound Envelopes for that
// call route to it. The caller should Register before sending the
// corresponding Signal, to avoid a race against a fast server reply.
func (d *ClientDispatcher) Register(h *RequestHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[h.CallID()] = h
}

// Unregister removes the handler for callID, if any, and discards any
// in-progress fragment reassembly for that call.
func (d *ClientDispatcher) Unregister(callID envelope.CallID) {
	d.mu.Lock()
	delete(d.handlers, callID)
	delete(d.channelWaiters, callID)
	d.reassembler.ExpireCall(callID)
	d.mu.Unlock()
}

func (d *ClientDispatcher) handlerFor(callID envelope.CallID) (*RequestHandler, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handlers[callID]
	return h, ok
}

// OnEnvelope routes one inbound Envelope to its RequestHandler. An envelope
// for a CallID with no registered handler (the call already closed locally,
// or the Envelope is stray) is silently dropped, as is an envelope of
// TUnknown type — both are intentional no-ops, not protocol errors.
func (d *ClientDispatcher) OnEnvelope(ctx context.Context, env *envelope.Envelope) {
	h, ok := d.handlerFor(env.CallID)
	if !ok {
		return
	}

	switch env.Type {
	case envelope.TSignalResponse:
		payload, err := compress.Decompress(env.Compression, env.Payload)
		if err != nil {
			h.NotifyError(msgerrors.E(ctx, msgerrors.CatProtocol, msgerrors.TypeMalformedEnvelope, err))
			return
		}
		env.Payload = payload
		h.AddResponse(env)

	case envelope.TSignalFragment, envelope.TEndOfFragmentedMessage:
		d.mu.Lock()
		payload, done, err := d.reassembler.AddFragment(env)
		d.mu.Unlock()
		if err != nil {
			h.NotifyError(msgerrors.E(ctx, msgerrors.CatFragmentation, msgerrors.TypeDigestMismatch, err))
			return
		}
		if !done {
			return
		}
		payload, err = compress.Decompress(env.Compression, payload)
		if err != nil {
			h.NotifyError(msgerrors.E(ctx, msgerrors.CatProtocol, msgerrors.TypeMalformedEnvelope, err))
			return
		}
		whole := envelope.New(envelope.TSignalResponse, env.CallID)
		whole.ResponseID = env.ResponseID
		whole.Payload = payload
		h.AddResponse(whole)

	case envelope.TExtendWait:
		h.KeepAlive(env.ReqTimeoutMillis)

	case envelope.TStreamClosed:
		h.EndOfStream()
		d.Unregister(env.CallID)

	case envelope.TException:
		h.NotifyError(msgerrors.E(ctx, msgerrors.CatSink, msgerrors.TypeSinkError, fmt.Errorf("%s", env.Payload)))
		d.Unregister(env.CallID)

	case envelope.TChannelSetup:
		d.mu.Lock()
		waiter, ok := d.channelWaiters[env.CallID]
		delete(d.channelWaiters, env.CallID)
		d.mu.Unlock()
		if ok {
			waiter <- struct{}{}
		}

	case envelope.TUnknown:
		// Forward-compatible no-op: a future message type this build
		// doesn't recognize.
	}
}

// ReapTick checks every registered handler's IsClosed, which performs
// timeout-driven closure as a side effect, and unregisters any that closed.
// A dispatcher's owner runs this on a ticker, independent of the receiver
// goroutine, so a call with no further traffic still times out promptly.
func (d *ClientDispatcher) ReapTick(ctx context.Context) {
	d.mu.Lock()
	ids := make([]envelope.CallID, 0, len(d.handlers))
	handlers := make([]*RequestHandler, 0, len(d.handlers))
	for id, h := range d.handlers {
		ids = append(ids, id)
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	for i, h := range handlers {
		if h.IsClosed(ctx) {
			d.Unregister(ids[i])
		}
	}
}

// Shutdown closes every registered handler gracefully (EndOfStream, not an
// error) unless a handler already recorded a terminal error — EndOfStream is
// a no-op on an already-closed handler, so an error that arrived first is
// preserved. Used when the client itself is stopping, per the cancellation
// semantics distinguishing a local stop from a call-level failure.
func (d *ClientDispatcher) Shutdown() {
	d.mu.Lock()
	handlers := make([]*RequestHandler, 0, len(d.handlers))
	for _, h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.handlers = map[envelope.CallID]*RequestHandler{}
	d.mu.Unlock()

	for _, h := range handlers {
		h.EndOfStream()
	}
}

// Len reports the number of registered handlers, for tests and diagnostics.
func (d *ClientDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}
