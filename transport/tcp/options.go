// Package tcp implements transport.Connection and transport.Dialer, plus a
// Listener that accepts Conns, over a length-prefixed TLS or plain TCP stream, for
// callers of session.New that need a concrete Connection rather than a
// broker client library.
package tcp

import (
	"crypto/tls"
	"time"
)

// config holds the dial/listen configuration shared by Dial and Listen.
type config struct {
	// tlsConfig, if non-nil, upgrades the connection to TLS. Nil means
	// plain TCP.
	tlsConfig *tls.Config

	dialTimeout     time.Duration
	keepAlive       time.Duration
	readBufferSize  int
	writeBufferSize int
}

func defaultConfig() *config {
	return &config{
		dialTimeout:     30 * time.Second,
		keepAlive:       30 * time.Second,
		readBufferSize:  64 * 1024,
		writeBufferSize: 64 * 1024,
	}
}

// Option configures a dial or listen call.
type Option func(*config)

// WithTLSConfig upgrades the connection to TLS using cfg. Nil (the
// default) leaves the connection in plain TCP.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) { c.tlsConfig = cfg }
}

// WithDialTimeout sets the timeout for connection establishment. Default
// 30s.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithKeepAlive sets the TCP keep-alive period. Default 30s; zero disables
// keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(c *config) { c.keepAlive = d }
}

// WithReadBufferSize sets the bufio.Reader size backing each frame read.
// Default 64KB.
func WithReadBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.readBufferSize = n
		}
	}
}

// WithWriteBufferSize sets the bufio.Writer size backing each frame write.
// Default 64KB.
func WithWriteBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.writeBufferSize = n
		}
	}
}
