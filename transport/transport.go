// Package transport defines the external collaborator boundary this runtime
// calls into: a message-oriented broker connection, its sessions, and the
// senders/receivers a Session creates on top of it. Concrete broker client
// libraries are out of scope here — this package specifies the interfaces a
// real client (Kafka, a JMS provider, an AMQP broker, ...) is expected to
// satisfy, in the same interface-segregation style rpc/transport/transport.go
// uses for its Transport/Dialer/Listener trio.
package transport

import (
	"io"

	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/envelope"
)

// Connection is one physical link to a broker endpoint. A Session holds a
// list of Connections as failback candidates; at most one is active at a
// time.
type Connection interface {
	io.Closer

	// Addr identifies this connection for logging and round-robin selection
	// (e.g. "broker-1:9092"). Stable for the lifetime of the Connection.
	Addr() string

	// OpenBrokerSession creates a session scoped to this connection.
	// transacted selects transacted-commit semantics; when false, autoAck
	// selects whether inbound messages are acknowledged automatically on
	// receipt or require an explicit Ack from the listener.
	OpenBrokerSession(ctx context.Context, transacted, autoAck bool) (BrokerSession, error)
}

// Dialer establishes new Connections to a broker endpoint. Matches
// rpc/transport/transport.go's Dialer shape: non-blocking construction,
// blocking Dial.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

// DialFunc dials a specific address, letting callers adapt any concrete
// client library (a Kafka producer/consumer pair, a JMS ConnectionFactory,
// ...) into a Dialer without a wrapper type.
type DialFunc func(ctx context.Context, addr string) (Connection, error)

// DeliveryMode selects durability for a sent message.
type DeliveryMode uint8

const (
	// NonPersistent messages may be lost if the broker restarts.
	NonPersistent DeliveryMode = iota
	// Persistent messages survive a broker restart.
	Persistent
)

// SendOptions configures one Send call.
type SendOptions struct {
	DeliveryMode DeliveryMode
	Priority     int
	// TTL is zero for "no expiration".
	TTL int64 // milliseconds
}

// SendOption mutates a SendOptions.
type SendOption func(*SendOptions)

// WithDeliveryMode sets the delivery mode for a send.
func WithDeliveryMode(m DeliveryMode) SendOption {
	return func(o *SendOptions) { o.DeliveryMode = m }
}

// WithPriority sets the broker priority for a send.
func WithPriority(p int) SendOption {
	return func(o *SendOptions) { o.Priority = p }
}

// WithTTL sets a time-to-live, in milliseconds, for a send.
func WithTTL(millis int64) SendOption {
	return func(o *SendOptions) { o.TTL = millis }
}

// Sender sends Envelopes to one destination.
type Sender interface {
	io.Closer
	Send(ctx context.Context, env *envelope.Envelope, opts ...SendOption) error
}

// ReceiveFunc is invoked once per inbound Envelope. It runs on the
// BrokerSession's own delivery thread; implementations that need to do
// anything beyond fast, non-blocking routing should hand off to a worker
// pool rather than block this callback (see the concurrency model in
// session.Session).
type ReceiveFunc func(*envelope.Envelope)

// ExceptionFunc is invoked when the underlying connection reports an
// asynchronous failure (the broker-client analog of a JMS ExceptionListener).
type ExceptionFunc func(error)

// Receiver delivers inbound Envelopes from one destination.
type Receiver interface {
	io.Closer
}

// BrokerSession is a session-scoped unit of work on one Connection: it
// creates Senders and Receivers and can mint a temporary reply destination.
// Matches spec's "Transport session create (transacted or auto-ack), sender
// and receiver creation with listener callback, temporary destination".
type BrokerSession interface {
	io.Closer

	// LookupDestination resolves a name to a Destination the broker
	// understands (a queue, topic, or partition key).
	LookupDestination(ctx context.Context, name string) (envelope.Destination, error)

	// CreateTemporaryDestination mints a destination scoped to this session,
	// typically used as a call's reply-to address.
	CreateTemporaryDestination(ctx context.Context) (envelope.Destination, error)

	// CreateSender returns a Sender bound to dest.
	CreateSender(ctx context.Context, dest envelope.Destination) (Sender, error)

	// CreateReceiver returns a Receiver bound to dest, invoking onMessage
	// for every inbound Envelope and onException if the underlying
	// subscription fails asynchronously.
	CreateReceiver(ctx context.Context, dest envelope.Destination, onMessage ReceiveFunc, onException ExceptionFunc) (Receiver, error)
}
