package http2

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/transport"
	"github.com/ymmah/messaging/transport/wire"
)

// Conn is a transport.Connection backed by one streaming HTTP/2 request:
// writes go to the request body, reads come from the response body.
type Conn struct {
	addr string

	mu         sync.Mutex
	pipeWriter *io.PipeWriter
	resp       *http.Response
	cancel     context.CancelFunc
	mux        *wire.Multiplexer
}

// Dial opens a streaming HTTP/2 (or h2c, for an http:// target) connection
// to rawURL.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Conn, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("http2: invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("http2: unsupported scheme %q, use http or https", u.Scheme)
	}
	u.Path = cfg.path

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: defaultRoundTripper(u.Scheme, cfg.tlsConfig)}
	}

	pipeReader, pipeWriter := io.Pipe()
	reqCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, u.String(), pipeReader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("http2: build request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	for k, v := range cfg.headers {
		req.Header[k] = v
	}

	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := httpClient.Do(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	var timeout <-chan time.Time
	if cfg.dialTimeout > 0 {
		timer := time.NewTimer(cfg.dialTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-reqCtx.Done():
		cancel()
		return nil, reqCtx.Err()
	case <-timeout:
		cancel()
		return nil, fmt.Errorf("http2: dial %s: no response within %v", rawURL, cfg.dialTimeout)
	case err := <-errCh:
		cancel()
		return nil, fmt.Errorf("http2: dial %s: %w", rawURL, err)
	case resp := <-respCh:
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("http2: server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &Conn{addr: u.String(), pipeWriter: pipeWriter, resp: resp, cancel: cancel}, nil
	}
}

func defaultRoundTripper(scheme string, tlsConfig *tls.Config) http.RoundTripper {
	if scheme == "https" {
		cfg := tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		return &http.Transport{TLSClientConfig: cfg, ForceAttemptHTTP2: true, DisableCompression: true}
	}
	// h2c: HTTP/2 without TLS, needed for full-duplex streaming over plain
	// HTTP/1.1 is not possible, so a plaintext target still needs a real
	// HTTP/2 connection.
	return &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
		DisableCompression: true,
	}
}

// Addr implements transport.Connection.
func (c *Conn) Addr() string { return c.addr }

// Close implements io.Closer.
func (c *Conn) Close() error {
	c.mu.Lock()
	mux := c.mux
	c.mu.Unlock()

	if mux != nil {
		return mux.Close()
	}
	return c.closeStreams()
}

// closeStreams releases the client-side pipe/response pair. It is a no-op
// on a server-side Conn, which has no pipe or response of its own to close
// (its Close instead always goes through mux.Close, see Close).
func (c *Conn) closeStreams() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.pipeWriter != nil {
		c.pipeWriter.Close()
	}
	if c.resp != nil {
		return c.resp.Body.Close()
	}
	return nil
}

// OpenBrokerSession implements transport.Connection. transacted and autoAck
// are accepted for interface compatibility; this transport has no
// broker-side redelivery to configure.
func (c *Conn) OpenBrokerSession(ctx context.Context, transacted, autoAck bool) (transport.BrokerSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mux != nil {
		return c.mux, nil
	}

	mux := wire.New(c.addr, c.resp.Body, c.pipeWriter, 64*1024, 64*1024, c.closeStreams)
	mux.Start()
	c.mux = mux
	return mux, nil
}

var _ transport.Connection = (*Conn)(nil)
