// Package http2 implements transport.Connection over a single long-lived
// HTTP/2 request: the client's streaming request body and the server's
// streaming response body form one duplex pair of Envelope frames,
// multiplexed the same way transport/tcp multiplexes over a raw socket.
// HTTP/2's per-stream flow control, not a connection pool, is what lets the
// client keep writing its request body while already reading the server's
// response body.
package http2

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ContentType is the MIME type used for every request and response body
// this package produces.
const ContentType = "application/vnd.messaging.envelope-stream"

// config holds the dial/serve configuration.
type config struct {
	tlsConfig   *tls.Config
	httpClient  *http.Client
	headers     http.Header
	path        string
	dialTimeout time.Duration
}

func defaultConfig() *config {
	return &config{
		headers:     make(http.Header),
		path:        "/messaging",
		dialTimeout: 30 * time.Second,
	}
}

// Option configures a Dial or a Handler.
type Option func(*config)

// WithTLSConfig sets the TLS configuration Dial uses for an https:// target
// when it builds its own transport (no WithHTTPClient). A Handler does not
// use it; TLS for a Handler is configured on the http.Server serving it.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) { c.tlsConfig = cfg }
}

// WithHTTPClient overrides the *http.Client a Dial uses, letting the caller
// fully control the underlying http2.Transport (h2c dialing, proxying,
// connection pooling).
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithHeader adds a header sent with the client's streaming request.
func WithHeader(key, value string) Option {
	return func(c *config) { c.headers.Set(key, value) }
}

// WithPath sets the endpoint path a Handler serves and a Dial targets.
// Default "/messaging".
func WithPath(path string) Option {
	return func(c *config) { c.path = path }
}

// WithDialTimeout bounds how long Dial waits for the server's response
// headers. Default 30s.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}
