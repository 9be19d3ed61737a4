package tcp

import (
	"crypto/tls"
	"net"
	"sync"

	"github.com/gostdlib/base/context"
)

// Listener accepts incoming TCP (optionally TLS) connections and wraps each
// as a *Conn. Matches the Dialer/Listener pairing rpc/transport/tcp uses,
// adapted to hand back transport.Connection instead of a raw byte-stream
// transport.Transport.
type Listener struct {
	listener net.Listener
	config   *config

	mu     sync.Mutex
	closed bool
}

// Listen creates a Listener on addr ("host:port" or ":port").
func Listen(ctx context.Context, addr string, opts ...Option) (*Listener, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	lc := net.ListenConfig{KeepAlive: cfg.keepAlive}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if cfg.tlsConfig != nil {
		ln = tls.NewListener(ln, cfg.tlsConfig)
	}

	return &Listener{listener: ln, config: cfg}, nil
}

// Accept waits for and wraps the next incoming connection.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	ln := l.listener
	l.mu.Unlock()

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return newConn(r.conn, l.config), nil
	}
}

// Close stops the listener from accepting new connections.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}
