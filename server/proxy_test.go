package server

import (
	"bytes"
	"sync"
	"testing"

	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/envelope"
	"github.com/ymmah/messaging/fragment"
	"github.com/ymmah/messaging/session"
	"github.com/ymmah/messaging/transport"
)

type fakeBrokerSession struct {
	sender transport.Sender
}

func (f *fakeBrokerSession) Close() error { return nil }
func (f *fakeBrokerSession) LookupDestination(ctx context.Context, name string) (envelope.Destination, error) {
	return envelope.Destination(name), nil
}
func (f *fakeBrokerSession) CreateTemporaryDestination(ctx context.Context) (envelope.Destination, error) {
	return envelope.Destination("reply"), nil
}
func (f *fakeBrokerSession) CreateSender(ctx context.Context, dest envelope.Destination) (transport.Sender, error) {
	return f.sender, nil
}
func (f *fakeBrokerSession) CreateReceiver(ctx context.Context, dest envelope.Destination, onMsg transport.ReceiveFunc, onErr transport.ExceptionFunc) (transport.Receiver, error) {
	return nil, nil
}

type fakeConn struct{ sender transport.Sender }

func (f *fakeConn) Close() error { return nil }
func (f *fakeConn) Addr() string { return "broker" }
func (f *fakeConn) OpenBrokerSession(ctx context.Context, transacted, autoAck bool) (transport.BrokerSession, error) {
	return &fakeBrokerSession{sender: f.sender}, nil
}

// echoSink records the payload it was handed and answers with it verbatim,
// closing done once Signal has run so tests can wait on the worker pool.
type echoSink struct {
	mu       sync.Mutex
	payloads [][]byte
	done     chan struct{}
}

func (s *echoSink) Signal(ctx context.Context, payload []byte, rc *ResponseContext, maxWaitMillis int64) {
	s.mu.Lock()
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	s.mu.Unlock()
	rc.AddResponse(ctx, payload)
	rc.EndOfStream(ctx)
	close(s.done)
}

func newTestProxy(sender transport.Sender) *ServerProxy {
	sess, err := session.New([]transport.Connection{&fakeConn{sender: sender}})
	if err != nil {
		panic(err)
	}
	return New(sess)
}

func TestChannelUploadReassemblesAndDispatchesToSink(t *testing.T) {
	sender := &capturingSender{}
	p := newTestProxy(sender)
	sink := &echoSink{done: make(chan struct{})}
	if err := p.Register("sink-dest", sink); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	callID := envelope.CallID("upload-1")

	req := envelope.New(envelope.TChannelRequest, callID)
	req.ReplyTo = "reply-to"
	p.OnEnvelope(ctx, "sink-dest", req)

	payload := bytes.Repeat([]byte("u"), 25)
	var splitter fragment.Splitter
	frags := splitter.Split(callID, "", payload, 10)
	for i, f := range frags {
		if i == len(frags)-1 {
			f.Type = envelope.TStreamClosed
		}
		p.OnEnvelope(ctx, "sink-dest", f)
	}

	<-sink.done

	if len(sink.payloads) != 1 {
		t.Fatalf("got %d sink invocations, want 1", len(sink.payloads))
	}
	if !bytes.Equal(sink.payloads[0], payload) {
		t.Fatalf("reassembled payload mismatch")
	}

	var sawSetup, sawResponse, sawStreamClosed bool
	for _, e := range sender.sent {
		switch e.Type {
		case envelope.TChannelSetup:
			sawSetup = true
		case envelope.TSignalResponse:
			sawResponse = true
		case envelope.TStreamClosed:
			sawStreamClosed = true
		}
	}
	if !sawSetup {
		t.Fatalf("expected a ChannelSetup ack, got %+v", sender.sent)
	}
	if !sawResponse || !sawStreamClosed {
		t.Fatalf("expected the reassembled signal to reach the sink and produce a response, got %+v", sender.sent)
	}
}

func TestOrdinarySignalFragmentWithoutChannelIsDropped(t *testing.T) {
	sender := &capturingSender{}
	p := newTestProxy(sender)
	sink := &echoSink{done: make(chan struct{})}
	if err := p.Register("sink-dest", sink); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	frag := envelope.New(envelope.TSignalFragment, "no-channel")
	frag.FragmentIndex = 0
	frag.FragmentsTotal = 1
	p.OnEnvelope(ctx, "sink-dest", frag)

	select {
	case <-sink.done:
		t.Fatalf("sink should not have been invoked for a fragment with no open channel")
	default:
	}
}
