package server

import (
	"errors"
	"fmt"
	"time"

	stdsync "github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/compress"
	"github.com/ymmah/messaging/envelope"
	msgerrors "github.com/ymmah/messaging/errors"
	"github.com/ymmah/messaging/fragment"
	"github.com/ymmah/messaging/metadata"
	"github.com/ymmah/messaging/peer"
	"github.com/ymmah/messaging/ratelimit"
	"github.com/ymmah/messaging/session"
	"github.com/ymmah/messaging/tracing"
	"github.com/ymmah/messaging/transport"
	"github.com/ymmah/messaging/validate"
)

// DefaultKeepAliveInterval is the watchdog cadence applied when a
// ServerProxy isn't given one explicitly, resolving spec's Open Question
// about a single, transport-independent keep-alive cadence.
const DefaultKeepAliveInterval = 10 * time.Second

// DefaultChannelInactivityTimeout bounds how long a channel upload may go
// without a new fragment before ServerProxy abandons it.
const DefaultChannelInactivityTimeout = 30 * time.Second

// RequestSink is the user-supplied callback a ServerProxy invokes for every
// inbound Signal. It owns rc for the lifetime of the call and must
// eventually call exactly one of rc.EndOfStream or rc.NotifyError.
type RequestSink interface {
	Signal(ctx context.Context, payload []byte, rc *ResponseContext, maxWaitMillis int64)
}

// ErrSinkExists is returned by Register when destName already has a sink.
var ErrSinkExists = errors.New("server: sink already registered for destination")

// ErrNoSink is returned when an inbound Signal names a destination with no
// registered sink.
var ErrNoSink = errors.New("server: no sink registered for destination")

// ServerProxy dispatches inbound Envelopes (delivered one per destination
// subscription, per the parallel-threads concurrency model) to registered
// RequestSinks, handing each invocation to a worker pool so a slow sink never
// blocks the receiver thread it arrived on.
type ServerProxy struct {
	mu    stdsync.RWMutex
	sinks map[string]RequestSink

	sess *session.Session

	keepAliveInterval        time.Duration
	channelInactivityTimeout time.Duration
	compression              envelope.Compression
	tracer                   *tracing.Tracer
	validators               *validate.Registry
	limiter                  *ratelimit.Limiter

	channels stdsync.Mutex
	channelBuffers map[envelope.CallID]*channelUpload

	active stdsync.Mutex
	activeCalls map[envelope.CallID]*ResponseContext

	reassembler *fragment.Reassembler
}

type channelUpload struct {
	replyTo  envelope.Destination
	version  envelope.ProtocolVersion
	lastSeen time.Time
	cancel   func()
}

// Option configures a new ServerProxy.
type Option func(*ServerProxy)

// WithKeepAliveInterval overrides DefaultKeepAliveInterval.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(p *ServerProxy) { p.keepAliveInterval = d }
}

// WithChannelInactivityTimeout overrides DefaultChannelInactivityTimeout.
func WithChannelInactivityTimeout(d time.Duration) Option {
	return func(p *ServerProxy) { p.channelInactivityTimeout = d }
}

// WithCompression selects the algorithm every ResponseContext this
// ServerProxy creates applies to outbound payloads via package compress.
func WithCompression(c envelope.Compression) Option {
	return func(p *ServerProxy) { p.compression = c }
}

// WithTracer wraps every inbound Signal dispatch in a server-kind span.
func WithTracer(t *tracing.Tracer) Option {
	return func(p *ServerProxy) { p.tracer = t }
}

// WithValidators checks every inbound Signal's payload against reg's request
// validator for its destination before handing it to the sink, and every
// AddResponse payload against reg's response validator for the same
// destination before it goes on the wire.
func WithValidators(reg *validate.Registry) Option {
	return func(p *ServerProxy) { p.validators = reg }
}

// WithRateLimiter rejects an inbound Signal with ErrRateLimited instead of
// dispatching it once its destination's token bucket in limiter runs dry.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(p *ServerProxy) { p.limiter = limiter }
}

// New returns a ServerProxy bound to sess, the Session used to obtain a
// Sender for each call's reply-to destination.
func New(sess *session.Session, opts ...Option) *ServerProxy {
	p := &ServerProxy{
		sinks:                    map[string]RequestSink{},
		sess:                     sess,
		keepAliveInterval:        DefaultKeepAliveInterval,
		channelInactivityTimeout: DefaultChannelInactivityTimeout,
		channelBuffers:           map[envelope.CallID]*channelUpload{},
		activeCalls:              map[envelope.CallID]*ResponseContext{},
		reassembler:              fragment.NewReassembler(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register binds sink to destName. A second Register for the same
// destination returns ErrSinkExists.
func (p *ServerProxy) Register(destName string, sink RequestSink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.sinks[destName]; exists {
		return fmt.Errorf("%w: %s", ErrSinkExists, destName)
	}
	p.sinks[destName] = sink
	return nil
}

func (p *ServerProxy) sinkFor(destName string) (RequestSink, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sinks[destName]
	return s, ok
}

// ListDestinations returns the destination names with a registered sink, in
// no particular order.
func (p *ServerProxy) ListDestinations() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.sinks))
	for name := range p.sinks {
		names = append(names, name)
	}
	return names
}

// OnEnvelope dispatches one inbound Envelope received on the subscription
// bound to destName. This is the entry point a Receiver's onMessage
// callback calls into.
func (p *ServerProxy) OnEnvelope(ctx context.Context, destName string, env *envelope.Envelope) {
	if addr := p.sess.CurrentAddr(); addr != "" {
		ctx = peer.WithRemoteAddr(ctx, addr)
	}
	switch env.Type {
	case envelope.TSignal:
		p.handleSignal(ctx, destName, env)
	case envelope.TChannelRequest:
		p.handleChannelRequest(ctx, destName, env)
	case envelope.TSignalFragment, envelope.TStreamClosed:
		// A client streaming a channel upload terminates it with
		// StreamClosed (spec §4.6), not EndOfFragmentedMessage — that
		// terminator belongs to the server's own response fragmentation
		// and never arrives inbound here.
		p.handleChannelFragment(ctx, destName, env)
	case envelope.TUnknown:
		// Forward-compatible no-op.
	}
}

// handleSignal implements the inbound-Signal steps: (1) resolve the sink,
// (2) build a ResponseContext bound to the call's reply-to and negotiated
// version, (3) start the keep-alive watchdog, (4) hand the call off to a
// worker so the receiver thread is free for the next message, (5) tear down
// the watchdog once the sink closes the ResponseContext.
func (p *ServerProxy) handleSignal(ctx context.Context, destName string, env *envelope.Envelope) {
	sink, ok := p.sinkFor(destName)
	if !ok {
		return
	}

	sender, err := p.sess.GetSender(ctx, env.ReplyTo)
	if err != nil {
		return
	}

	rc := newResponseContext(env.CallID, env.ReplyTo, env.Version, sender).
		withCompression(p.compression).
		withResponseValidator(p.validators, destName)

	if !p.limiter.Allow(destName) {
		rc.NotifyError(ctx, msgerrors.E(ctx, msgerrors.CatProtocol, msgerrors.TypeRateLimited, ratelimit.ErrRateLimited))
		return
	}

	payload, err := compress.Decompress(env.Compression, env.Payload)
	if err != nil {
		rc.NotifyError(ctx, msgerrors.E(ctx, msgerrors.CatProtocol, msgerrors.TypeMalformedEnvelope, err))
		return
	}

	if err := p.validators.ValidateRequest(ctx, destName, payload); err != nil {
		rc.NotifyError(ctx, msgerrors.E(ctx, msgerrors.CatProtocol, msgerrors.TypeValidationFailed, err))
		return
	}

	p.active.Lock()
	p.activeCalls[env.CallID] = rc
	p.active.Unlock()

	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	callID := env.CallID
	rc.onClose(func() {
		stopWatchdog()
		p.active.Lock()
		delete(p.activeCalls, callID)
		p.active.Unlock()
	})
	p.startWatchdog(watchdogCtx, rc)

	sinkCtx := ctx
	if md := metadata.FromProperties(env.Properties); md != nil {
		sinkCtx = metadata.NewContext(ctx, md)
	}
	sinkCtx, endSpan := p.tracer.StartServerSpan(sinkCtx, destName, env.CallID, len(payload))
	rc.onClose(func() { endSpan(rc.Err()) })

	pool := context.Pool(ctx)
	pool.Submit(ctx, func() {
		defer p.recoverSinkPanic(sinkCtx, rc)
		sink.Signal(sinkCtx, payload, rc, env.ReqTimeoutMillis)
	})
}

func (p *ServerProxy) recoverSinkPanic(ctx context.Context, rc *ResponseContext) {
	if r := recover(); r != nil {
		rc.NotifyError(ctx, msgerrors.E(ctx, msgerrors.CatSink, msgerrors.TypeSinkPanic,
			fmt.Errorf("sink panic: %v", r)))
	}
}

// startWatchdog emits ExtendWait every keepAliveInterval unless the sink
// itself sent something (a response or its own KeepAlive) more recently than
// that interval — avoiding a redundant watchdog message on top of real
// traffic. It stops once rc closes.
func (p *ServerProxy) startWatchdog(ctx context.Context, rc *ResponseContext) {
	pool := context.Pool(ctx)
	pool.Submit(ctx, func() {
		ticker := time.NewTicker(p.keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rc.IsClosed() {
					return
				}
				if time.Since(rc.LastSentTime()) >= p.keepAliveInterval {
					rc.KeepAlive(ctx, time.Now().Add(p.keepAliveInterval).UnixMilli())
				}
			}
		}
	})
}

// handleChannelRequest begins a large-upload channel: it records the call's
// reply-to and negotiated version under its CallID and acknowledges with a
// ChannelSetup sent to that reply-to. It allocates no separate channel
// destination; the upload's fragments are accepted on destName, the
// destination the request arrived on, and matched by CallID.
func (p *ServerProxy) handleChannelRequest(ctx context.Context, destName string, env *envelope.Envelope) {
	sender, err := p.sess.GetSender(ctx, env.ReplyTo)
	if err != nil {
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.channels.Lock()
	p.channelBuffers[env.CallID] = &channelUpload{
		replyTo:  env.ReplyTo,
		version:  env.Version,
		lastSeen: time.Now(),
		cancel:   cancel,
	}
	p.channels.Unlock()

	setup := envelope.New(envelope.TChannelSetup, env.CallID)
	setup.Version = env.Version
	sender.Send(ctx, setup)

	p.monitorChannelInactivity(watchCtx, destName, env.CallID)
}

func (p *ServerProxy) monitorChannelInactivity(ctx context.Context, destName string, callID envelope.CallID) {
	pool := context.Pool(ctx)
	pool.Submit(ctx, func() {
		ticker := time.NewTicker(p.channelInactivityTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.channels.Lock()
				up, ok := p.channelBuffers[callID]
				if ok && time.Since(up.lastSeen) > p.channelInactivityTimeout {
					delete(p.channelBuffers, callID)
					p.reassembler.ExpireCall(callID)
					p.channels.Unlock()
					return
				}
				p.channels.Unlock()
			}
		}
	})
}

// handleChannelFragment accumulates one fragment of an in-progress channel
// upload. Once the terminator arrives and the digest matches, the
// reassembled payload is dispatched to destName's sink exactly as an
// ordinary Signal would be, with the channel's own reply-to and negotiated
// version.
func (p *ServerProxy) handleChannelFragment(ctx context.Context, destName string, env *envelope.Envelope) {
	p.channels.Lock()
	up, ok := p.channelBuffers[env.CallID]
	if ok {
		up.lastSeen = time.Now()
	}
	p.channels.Unlock()
	if !ok {
		return
	}

	p.channels.Lock()
	payload, done, err := p.reassembler.AddFragment(env)
	p.channels.Unlock()
	if err != nil {
		if sender, sendErr := p.sess.GetSender(ctx, up.replyTo); sendErr == nil {
			rc := newResponseContext(env.CallID, up.replyTo, up.version, sender)
			rc.NotifyError(ctx, msgerrors.E(ctx, msgerrors.CatFragmentation, msgerrors.TypeDigestMismatch, err))
		}
		p.channels.Lock()
		delete(p.channelBuffers, env.CallID)
		p.channels.Unlock()
		if up.cancel != nil {
			up.cancel()
		}
		return
	}
	if !done {
		return
	}

	p.channels.Lock()
	delete(p.channelBuffers, env.CallID)
	p.channels.Unlock()
	if up.cancel != nil {
		up.cancel()
	}

	signal := envelope.New(envelope.TSignal, env.CallID)
	signal.ReplyTo = up.replyTo
	signal.Version = up.version
	signal.Compression = env.Compression
	signal.Payload = payload
	p.handleSignal(ctx, destName, signal)
}

// Shutdown closes every outstanding ResponseContext without sending a
// terminal message on the wire: the server is stopping, not failing the
// call, and per spec this is surfaced to sinks as AddResponse/KeepAlive
// simply returning false/no-op from then on rather than as a notified error.
func (p *ServerProxy) Shutdown() {
	p.channels.Lock()
	for _, up := range p.channelBuffers {
		if up.cancel != nil {
			up.cancel()
		}
	}
	p.channelBuffers = map[envelope.CallID]*channelUpload{}
	p.channels.Unlock()

	p.active.Lock()
	calls := make([]*ResponseContext, 0, len(p.activeCalls))
	for _, rc := range p.activeCalls {
		calls = append(calls, rc)
	}
	p.activeCalls = map[envelope.CallID]*ResponseContext{}
	p.active.Unlock()

	for _, rc := range calls {
		rc.forceClose()
	}
}
