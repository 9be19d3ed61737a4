package wire

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/envelope"
	"github.com/ymmah/messaging/transport"
)

// destProperty tags an outbound frame with the Destination its Sender was
// bound to, so the peer's read loop can demux inbound frames to the
// matching Receiver without the wire protocol itself needing a destination
// concept (a raw stream transport has exactly one implicit channel; the
// destination concept only exists at this multiplexing layer).
const destProperty = "X-Wire-Destination"

var tempDestSeq atomic.Uint64

// Multiplexer implements transport.BrokerSession over a single duplex
// stream (a net.Conn, an HTTP/2 request/response body pair, or anything
// else reducible to an io.Reader and an io.Writer). It is the one
// BrokerSession a Conn hands back from every OpenBrokerSession call,
// matching transport.Connection's "at most one active BrokerSession per
// physical link" shape.
type Multiplexer struct {
	addr    string
	onClose func() error

	writeMu sync.Mutex
	writer  *bufio.Writer
	reader  *bufio.Reader

	mu        sync.RWMutex
	receivers map[envelope.Destination]*Receiver
	closed    bool
}

// New returns a Multiplexer reading frames from r and writing them to w,
// identifying itself as addr for CreateTemporaryDestination names. onClose
// is invoked once by Close to release the underlying stream.
func New(addr string, r io.Reader, w io.Writer, readBufSize, writeBufSize int, onClose func() error) *Multiplexer {
	return &Multiplexer{
		addr:      addr,
		onClose:   onClose,
		writer:    bufio.NewWriterSize(w, writeBufSize),
		reader:    bufio.NewReaderSize(r, readBufSize),
		receivers: make(map[envelope.Destination]*Receiver),
	}
}

// Start launches the read loop that dispatches inbound frames to their
// destination's Receiver. Callers start it once per Multiplexer, after
// construction, the same way Conn.OpenBrokerSession does for every
// transport implementation in this module.
func (m *Multiplexer) Start() {
	go m.readLoop()
}

// LookupDestination implements transport.BrokerSession. A point-to-point
// stream has no broker-side queues to resolve against, so this just wraps
// name.
func (m *Multiplexer) LookupDestination(ctx context.Context, name string) (envelope.Destination, error) {
	return envelope.Destination(name), nil
}

// CreateTemporaryDestination implements transport.BrokerSession.
func (m *Multiplexer) CreateTemporaryDestination(ctx context.Context) (envelope.Destination, error) {
	n := tempDestSeq.Add(1)
	return envelope.Destination(fmt.Sprintf("wire-temp-%s-%d", m.addr, n)), nil
}

// CreateSender implements transport.BrokerSession.
func (m *Multiplexer) CreateSender(ctx context.Context, dest envelope.Destination) (transport.Sender, error) {
	return &Sender{mux: m, dest: dest}, nil
}

// CreateReceiver implements transport.BrokerSession.
func (m *Multiplexer) CreateReceiver(ctx context.Context, dest envelope.Destination, onMessage transport.ReceiveFunc, onException transport.ExceptionFunc) (transport.Receiver, error) {
	r := &Receiver{mux: m, dest: dest, onMessage: onMessage, onException: onException}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, io.ErrClosedPipe
	}
	m.receivers[dest] = r
	m.mu.Unlock()

	return r, nil
}

// Close implements transport.BrokerSession (via io.Closer). It unregisters
// every Receiver and releases the underlying stream via onClose.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.receivers = map[envelope.Destination]*Receiver{}
	m.mu.Unlock()

	if m.onClose != nil {
		return m.onClose()
	}
	return nil
}

func (m *Multiplexer) write(env *envelope.Envelope, dest envelope.Destination) error {
	if env.Properties == nil {
		env.Properties = map[string]string{}
	}
	env.Properties[destProperty] = string(dest)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return WriteFrame(m.writer, env)
}

func (m *Multiplexer) readLoop() {
	for {
		env, err := ReadFrame(m.reader)
		if err != nil {
			m.dispatchException(err)
			return
		}

		dest := envelope.Destination(env.Properties[destProperty])

		m.mu.RLock()
		r, ok := m.receivers[dest]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		r.onMessage(env)
	}
}

func (m *Multiplexer) dispatchException(err error) {
	m.mu.RLock()
	receivers := make([]*Receiver, 0, len(m.receivers))
	for _, r := range m.receivers {
		receivers = append(receivers, r)
	}
	m.mu.RUnlock()

	for _, r := range receivers {
		if r.onException != nil {
			r.onException(err)
		}
	}
}

func (m *Multiplexer) removeReceiver(dest envelope.Destination) {
	m.mu.Lock()
	delete(m.receivers, dest)
	m.mu.Unlock()
}

// Sender implements transport.Sender over a Multiplexer, tagging every
// Envelope it sends with its bound destination.
type Sender struct {
	mux  *Multiplexer
	dest envelope.Destination
}

// Send implements transport.Sender. opts are accepted for interface
// compatibility; a raw stream has no broker-side delivery-mode, priority,
// or TTL concept to apply them to.
func (s *Sender) Send(ctx context.Context, env *envelope.Envelope, opts ...transport.SendOption) error {
	return s.mux.write(env, s.dest)
}

// Close implements io.Closer. A Sender holds no resources beyond the
// shared Multiplexer, so Close is a no-op.
func (s *Sender) Close() error { return nil }

// Receiver implements transport.Receiver. Its onMessage callback runs
// directly on the Multiplexer's read-loop goroutine.
type Receiver struct {
	mux         *Multiplexer
	dest        envelope.Destination
	onMessage   transport.ReceiveFunc
	onException transport.ExceptionFunc
}

// Close implements io.Closer, unregistering the Receiver so the read loop
// stops routing frames to it.
func (r *Receiver) Close() error {
	r.mux.removeReceiver(r.dest)
	return nil
}

var (
	_ transport.BrokerSession = (*Multiplexer)(nil)
	_ transport.Sender        = (*Sender)(nil)
	_ transport.Receiver      = (*Receiver)(nil)
)
