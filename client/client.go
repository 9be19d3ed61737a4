package client

import (
	"time"

	"github.com/google/uuid"
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/retry/exponential"

	"github.com/ymmah/messaging/compress"
	"github.com/ymmah/messaging/credentials"
	"github.com/ymmah/messaging/envelope"
	"github.com/ymmah/messaging/fragment"
	"github.com/ymmah/messaging/metadata"
	"github.com/ymmah/messaging/retry"
	"github.com/ymmah/messaging/serviceconfig"
	"github.com/ymmah/messaging/session"
	"github.com/ymmah/messaging/tracing"
	"github.com/ymmah/messaging/transport"
	"github.com/ymmah/messaging/validate"
)

// MaxSignalSize bounds the payload Signal sends as a single envelope; a
// larger payload is streamed through the channel-upload workflow (spec §4.6)
// instead of being fragmented onto the call's own destination.
const MaxSignalSize = fragment.DefaultMaxFragmentSize

// Client issues calls against a destination reachable through a Session: it
// generates the CallID, registers the call's RequestHandler with a
// ClientDispatcher before anything goes on the wire, and builds the Signal
// (or, for an oversized payload, ChannelRequest-then-fragments) Envelope the
// teacher's rpc/client/client.go equivalent would assemble by hand for every
// call.
type Client struct {
	sess        *session.Session
	dispatcher  *ClientDispatcher
	destName    string
	compression envelope.Compression
	creds       credentials.PerRPCCredentials
	svcConfig   *serviceconfig.Config
	tracer      *tracing.Tracer
	retryPolicy retry.Policy
	validators  *validate.Registry
}

// Option configures a new Client.
type Option func(*Client)

// WithCompression selects the algorithm Signal applies to outbound payloads
// via package compress.
func WithCompression(c envelope.Compression) Option {
	return func(cl *Client) { cl.compression = c }
}

// WithCredentials attaches creds' request metadata to every Signal this
// Client sends, merged with whatever metadata.MD the caller's context
// already carries (the credentials' keys win on conflict).
func WithCredentials(creds credentials.PerRPCCredentials) Option {
	return func(cl *Client) { cl.creds = creds }
}

// WithServiceConfig resolves this Client's destination against cfg on every
// Signal: a configured Timeout fills in for a zero maxWait, and
// WaitForReady governs whether destination/sender resolution retries
// through a mid-reconnect Session instead of failing the call immediately.
func WithServiceConfig(cfg *serviceconfig.Config) Option {
	return func(cl *Client) { cl.svcConfig = cfg }
}

// WithTracer wraps every Signal in a client-kind span.
func WithTracer(t *tracing.Tracer) Option {
	return func(cl *Client) { cl.tracer = t }
}

// WithRetryPolicy retries a Signal's send step (the Signal envelope itself,
// or the ChannelRequest that opens a channel-upload) per policy; a
// channel-upload's fragments are sent once each. The zero Policy
// (MaxAttempts 0) is the default and sends each envelope exactly once,
// matching Signal's behavior before retry existed.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(cl *Client) { cl.retryPolicy = policy }
}

// WithValidators checks every outbound payload against reg's request
// validator for this Client's destination before Signal sends it.
func WithValidators(reg *validate.Registry) Option {
	return func(cl *Client) { cl.validators = reg }
}

// NewClient returns a Client that sends Signals to destName over sess,
// registering every call's RequestHandler with dispatcher.
func NewClient(sess *session.Session, dispatcher *ClientDispatcher, destName string, opts ...Option) *Client {
	cl := &Client{sess: sess, dispatcher: dispatcher, destName: destName}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Signal starts one call: it resolves destName and the session's reply
// destination, mints a CallID, registers a RequestHandler for it, and sends
// the payload as a Signal (or, once it exceeds MaxSignalSize, as a
// channel-upload). The returned RequestHandler is already registered and
// ready to read from by the time Signal returns a nil error; on a send
// failure the handler is unregistered before the error is returned, so
// callers never hold a handler for a call that never reached the wire.
func (c *Client) Signal(ctx context.Context, payload []byte, allowKeepAlive bool, maxWait time.Duration) (*RequestHandler, error) {
	if maxWait == 0 {
		maxWait = c.svcConfig.GetTimeout(c.destName)
	}

	if err := c.validators.ValidateRequest(ctx, c.destName, payload); err != nil {
		return nil, err
	}

	dest, sender, replyTo, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	payload, err = compress.Compress(c.compression, payload)
	if err != nil {
		return nil, err
	}

	callMD, err := c.callMetadata(ctx, dest)
	if err != nil {
		return nil, err
	}

	callID := envelope.CallID(uuid.NewString())
	h := New(callID, allowKeepAlive, maxWait)
	c.dispatcher.Register(h)

	deadlineMillis := time.Now().Add(maxWait).UnixMilli()

	// The span covers getting the call onto the wire, not the asynchronous
	// wait for responses that follows via h.GetResponses: there is no
	// synchronous invoker call here to bound a request/response round trip
	// the way the teacher's interceptor does.
	_, endSpan := c.tracer.StartClientSpan(ctx, c.destName, callID, len(payload))

	if len(payload) <= MaxSignalSize {
		env := envelope.New(envelope.TSignal, callID)
		env.ReplyTo = replyTo
		env.ReqTimeoutMillis = deadlineMillis
		env.Compression = c.compression
		env.Payload = payload
		callMD.ToProperties(env.Properties)
		if err := retry.Do(ctx, c.retryPolicy, func(retryCtx context.Context) error {
			return sender.Send(retryCtx, env)
		}); err != nil {
			c.dispatcher.Unregister(callID)
			endSpan(err)
			return nil, err
		}
		endSpan(nil)
		return h, nil
	}

	if err := c.sendChannelUpload(ctx, sender, callID, replyTo, payload, deadlineMillis, callMD); err != nil {
		c.dispatcher.Unregister(callID)
		endSpan(err)
		return nil, err
	}
	endSpan(nil)
	return h, nil
}

// resolve looks up the call's destination, sender, and the session's
// reply-to. When the destination's serviceconfig entry sets WaitForReady,
// every failed lookup is retried with backoff until one succeeds or ctx is
// done, whatever the Session's state. Without WaitForReady the first error
// is returned as-is,
// matching the pre-serviceconfig fail-fast behavior.
func (c *Client) resolve(ctx context.Context) (envelope.Destination, transport.Sender, envelope.Destination, error) {
	if !c.svcConfig.GetWaitForReady(c.destName) {
		dest, err := c.sess.GetDestination(ctx, c.destName)
		if err != nil {
			return "", nil, "", err
		}
		replyTo, err := c.sess.GetReplyDestination(ctx)
		if err != nil {
			return "", nil, "", err
		}
		sender, err := c.sess.GetSender(ctx, dest)
		if err != nil {
			return "", nil, "", err
		}
		return dest, sender, replyTo, nil
	}

	var dest, replyTo envelope.Destination
	var sender transport.Sender
	backoff, _ := exponential.New(exponential.WithPolicy(exponential.SecondsRetryPolicy()))
	err := backoff.Retry(ctx, func(retryCtx context.Context, r exponential.Record) error {
		d, err := c.sess.GetDestination(retryCtx, c.destName)
		if err != nil {
			return err
		}
		rt, err := c.sess.GetReplyDestination(retryCtx)
		if err != nil {
			return err
		}
		s, err := c.sess.GetSender(retryCtx, d)
		if err != nil {
			return err
		}
		dest, replyTo, sender = d, rt, s
		return nil
	})
	if err != nil {
		return "", nil, "", err
	}
	return dest, sender, replyTo, nil
}

// callMetadata merges whatever metadata.MD ctx carries with what c.creds
// supplies, credentials winning on conflict, into a fresh MD ready to write
// onto an outbound Envelope's Properties.
func (c *Client) callMetadata(ctx context.Context, dest envelope.Destination) (metadata.MD, error) {
	md, _ := metadata.FromContext(ctx)
	md = md.Clone()

	if c.creds == nil {
		return md, nil
	}
	credMD, err := c.creds.GetRequestMetadata(ctx, string(dest))
	if err != nil {
		return nil, err
	}
	if md == nil {
		md = metadata.MD{}
	}
	for k, v := range credMD {
		md.SetString(k, v)
	}
	return md, nil
}

// sendChannelUpload opens a channel with ChannelRequest, waits for the
// server's ChannelSetup ack, then streams payload as SignalFragment envelopes
// terminated by StreamClosed, per spec §4.6. Fragments are addressed to the
// same destination as the ChannelRequest: ServerProxy demultiplexes inbound
// channel fragments by CallID alone, not by which destination they arrive on
// (see server/proxy.go's handleChannelFragment), so a second, separately
// allocated channel destination would add plumbing without changing
// behavior.
func (c *Client) sendChannelUpload(ctx context.Context, sender transport.Sender, callID envelope.CallID, replyTo envelope.Destination, payload []byte, deadlineMillis int64, callMD metadata.MD) error {
	req := envelope.New(envelope.TChannelRequest, callID)
	req.ReplyTo = replyTo
	req.ReqTimeoutMillis = deadlineMillis
	callMD.ToProperties(req.Properties)
	ready := c.dispatcher.awaitChannelSetup(callID)
	if err := retry.Do(ctx, c.retryPolicy, func(retryCtx context.Context) error {
		return sender.Send(retryCtx, req)
	}); err != nil {
		return err
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	var splitter fragment.Splitter
	frags := splitter.Split(callID, "", payload, MaxSignalSize)
	for i, f := range frags {
		if i == len(frags)-1 {
			// Split's own terminator is EndOfFragmentedMessage, which marks
			// the end of a response fragment sequence; a channel upload ends
			// with StreamClosed instead (spec §4.6), so the last envelope's
			// type is swapped before it goes out. It still carries the
			// FragmentsTotal/ChecksumMD5 properties Reassembler needs.
			f.Type = envelope.TStreamClosed
		}
		f.Compression = c.compression
		if err := sender.Send(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
