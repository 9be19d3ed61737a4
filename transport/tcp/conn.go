package tcp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/transport"
	"github.com/ymmah/messaging/transport/wire"
)

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("tcp: connection closed")

// Conn is a transport.Connection backed by one TCP (optionally TLS) socket.
// Every Envelope sent or received on it is framed by package wire, matching
// the buffered-I/O approach of a plain byte-stream transport but adapted to
// frame discrete Envelopes instead of leaving framing to a higher-level RPC
// codec.
type Conn struct {
	conn   net.Conn
	config *config

	mu  sync.Mutex
	mux *wire.Multiplexer
}

// Dial opens a TCP connection to addr, optionally upgrading to TLS per
// WithTLSConfig.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	dialer := &net.Dialer{Timeout: cfg.dialTimeout, KeepAlive: cfg.keepAlive}

	var conn net.Conn
	var err error
	if cfg.tlsConfig != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, cfg.tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", addr, err)
	}

	return newConn(conn, cfg), nil
}

func newConn(conn net.Conn, cfg *config) *Conn {
	return &Conn{conn: conn, config: cfg}
}

// Addr implements transport.Connection.
func (c *Conn) Addr() string {
	return c.conn.RemoteAddr().String()
}

// Close implements io.Closer.
func (c *Conn) Close() error {
	c.mu.Lock()
	mux := c.mux
	c.mu.Unlock()

	if mux != nil {
		mux.Close()
	}
	return c.conn.Close()
}

// OpenBrokerSession implements transport.Connection. It returns the single
// BrokerSession multiplexed over this Conn's socket; transacted and autoAck
// are accepted for interface compatibility but this transport acknowledges
// every frame on receipt (there is no broker-side redelivery to opt out
// of).
func (c *Conn) OpenBrokerSession(ctx context.Context, transacted, autoAck bool) (transport.BrokerSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mux != nil {
		return c.mux, nil
	}

	mux := wire.New(c.Addr(), c.conn, c.conn, c.config.readBufferSize, c.config.writeBufferSize, c.conn.Close)
	mux.Start()
	c.mux = mux
	return mux, nil
}

var _ transport.Connection = (*Conn)(nil)
