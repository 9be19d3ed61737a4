package client

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/envelope"
	"github.com/ymmah/messaging/serviceconfig"
	"github.com/ymmah/messaging/session"
	"github.com/ymmah/messaging/transport"
)

type capturingSender struct {
	mu   sync.Mutex
	sent []*envelope.Envelope
	fail bool
}

func (s *capturingSender) Close() error { return nil }
func (s *capturingSender) Send(ctx context.Context, env *envelope.Envelope, opts ...transport.SendOption) error {
	if s.fail {
		return fmt.Errorf("send failed")
	}
	s.mu.Lock()
	s.sent = append(s.sent, env)
	s.mu.Unlock()
	return nil
}

func (s *capturingSender) snapshot() []*envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*envelope.Envelope, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeBrokerSession struct {
	sender *capturingSender
}

func (f *fakeBrokerSession) Close() error { return nil }
func (f *fakeBrokerSession) LookupDestination(ctx context.Context, name string) (envelope.Destination, error) {
	return envelope.Destination("dest/" + name), nil
}
func (f *fakeBrokerSession) CreateTemporaryDestination(ctx context.Context) (envelope.Destination, error) {
	return envelope.Destination("reply/temp"), nil
}
func (f *fakeBrokerSession) CreateSender(ctx context.Context, dest envelope.Destination) (transport.Sender, error) {
	return f.sender, nil
}
func (f *fakeBrokerSession) CreateReceiver(ctx context.Context, dest envelope.Destination, onMsg transport.ReceiveFunc, onErr transport.ExceptionFunc) (transport.Receiver, error) {
	return nil, fmt.Errorf("not implemented")
}

type fakeConn struct {
	sender *capturingSender
}

func (f *fakeConn) Close() error { return nil }
func (f *fakeConn) Addr() string { return "broker-0" }
func (f *fakeConn) OpenBrokerSession(ctx context.Context, transacted, autoAck bool) (transport.BrokerSession, error) {
	return &fakeBrokerSession{sender: f.sender}, nil
}

func newTestClient(sender *capturingSender) *Client {
	sess, err := session.New([]transport.Connection{&fakeConn{sender: sender}})
	if err != nil {
		panic(err)
	}
	return NewClient(sess, NewDispatcher(), "sink")
}

func TestSignalSendsEnvelopeAndRegistersHandler(t *testing.T) {
	sender := &capturingSender{}
	c := newTestClient(sender)
	ctx := context.Background()

	h, err := c.Signal(ctx, []byte("hello"), true, time.Minute)
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if c.dispatcher.Len() != 1 {
		t.Fatalf("dispatcher.Len() = %d, want 1", c.dispatcher.Len())
	}
	if h.CallID() == "" {
		t.Fatalf("expected a non-empty generated CallID")
	}

	sent := sender.snapshot()
	if len(sent) != 1 {
		t.Fatalf("got %d sent envelopes, want 1", len(sent))
	}
	env := sent[0]
	if env.Type != envelope.TSignal {
		t.Fatalf("Type = %v, want TSignal", env.Type)
	}
	if env.ReplyTo != "reply/temp" {
		t.Fatalf("ReplyTo = %q, want reply/temp", env.ReplyTo)
	}
	if env.CallID != h.CallID() {
		t.Fatalf("envelope CallID %q does not match handler CallID %q", env.CallID, h.CallID())
	}
	if !bytes.Equal(env.Payload, []byte("hello")) {
		t.Fatalf("payload mismatch")
	}
	if env.ReqTimeoutMillis == 0 {
		t.Fatalf("expected a non-zero deadline")
	}
}

func TestSignalUnregistersHandlerOnSendFailure(t *testing.T) {
	sender := &capturingSender{fail: true}
	c := newTestClient(sender)
	ctx := context.Background()

	_, err := c.Signal(ctx, []byte("hello"), true, time.Minute)
	if err == nil {
		t.Fatalf("expected an error from a failing sender")
	}
	if c.dispatcher.Len() != 0 {
		t.Fatalf("handler should be unregistered after a failed send, got Len()=%d", c.dispatcher.Len())
	}
}

func TestSignalCompressesPayload(t *testing.T) {
	sender := &capturingSender{}
	c := NewClient(mustSession(sender), NewDispatcher(), "sink", WithCompression(envelope.CmpGzip))
	ctx := context.Background()

	original := bytes.Repeat([]byte("z"), 500)
	if _, err := c.Signal(ctx, original, true, time.Minute); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	sent := sender.snapshot()
	if len(sent) != 1 {
		t.Fatalf("got %d sent envelopes, want 1", len(sent))
	}
	if sent[0].Compression != envelope.CmpGzip {
		t.Fatalf("Compression = %v, want CmpGzip", sent[0].Compression)
	}
	if bytes.Equal(sent[0].Payload, original) {
		t.Fatalf("payload should have been compressed, got identical bytes")
	}
}

func TestSignalOversizedPayloadUsesChannelUpload(t *testing.T) {
	sender := &capturingSender{}
	c := newTestClient(sender)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("a"), MaxSignalSize+10)

	done := make(chan struct{})
	var h *RequestHandler
	var sigErr error
	go func() {
		h, sigErr = c.Signal(ctx, payload, true, time.Minute)
		close(done)
	}()

	// Wait for the ChannelRequest to land, then ack it exactly as
	// ServerProxy.handleChannelRequest would, unblocking the fragment stream.
	var callID envelope.CallID
	for {
		sent := sender.snapshot()
		if len(sent) >= 1 && sent[0].Type == envelope.TChannelRequest {
			callID = sent[0].CallID
			break
		}
		time.Sleep(time.Millisecond)
	}
	setup := envelope.New(envelope.TChannelSetup, callID)
	c.dispatcher.OnEnvelope(ctx, setup)

	<-done
	if sigErr != nil {
		t.Fatalf("Signal: %v", sigErr)
	}
	if h == nil {
		t.Fatalf("expected a non-nil handler")
	}

	sent := sender.snapshot()
	if sent[0].Type != envelope.TChannelRequest {
		t.Fatalf("first envelope should be ChannelRequest, got %v", sent[0].Type)
	}
	last := sent[len(sent)-1]
	if last.Type != envelope.TStreamClosed {
		t.Fatalf("last envelope should be StreamClosed, got %v", last.Type)
	}
	if last.ChecksumMD5 != envelope.MD5Sum(payload) {
		t.Fatalf("StreamClosed digest mismatch")
	}

	var reassembled []byte
	for _, env := range sent[1 : len(sent)-1] {
		if env.Type != envelope.TSignalFragment {
			t.Fatalf("unexpected envelope type in fragment stream: %v", env.Type)
		}
		reassembled = append(reassembled, env.Payload...)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Fatalf("reassembled fragment payload mismatch")
	}
}

func TestSignalZeroWaitUsesServiceConfigTimeout(t *testing.T) {
	sender := &capturingSender{}
	cfg := serviceconfig.NewBuilder().WithTimeout("sink", 5*time.Second).Build()
	c := NewClient(mustSession(sender), NewDispatcher(), "sink", WithServiceConfig(cfg))
	ctx := context.Background()

	before := time.Now()
	if _, err := c.Signal(ctx, []byte("hello"), true, 0); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	sent := sender.snapshot()
	if got := sent[0].ReqTimeoutMillis; got < before.Add(4*time.Second).UnixMilli() {
		t.Fatalf("ReqTimeoutMillis = %d, want at least 5s out", got)
	}
}

func mustSession(sender *capturingSender) *session.Session {
	sess, err := session.New([]transport.Connection{&fakeConn{sender: sender}})
	if err != nil {
		panic(err)
	}
	return sess
}
