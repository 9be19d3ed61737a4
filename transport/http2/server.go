package http2

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/transport"
	"github.com/ymmah/messaging/transport/wire"
)

// ErrClosed is returned by operations on a closed Handler.
var ErrClosed = errors.New("http2: handler closed")

// Handler is an http.Handler that turns every request it receives into a
// transport.Connection and hands it to whatever is calling Accept. Run it
// behind an *http.Server (with h2c support for a plaintext target) or an
// https:// listener with HTTP/2 negotiated via ALPN.
type Handler struct {
	path string

	mu      sync.Mutex
	closed  bool
	pending chan *Conn
}

// NewHandler returns a Handler serving at path (default from config if
// empty: "/messaging").
func NewHandler(opts ...Option) *Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Handler{path: cfg.path, pending: make(chan *Conn)}
}

// ServeHTTP implements http.Handler. It blocks for the lifetime of the
// connection: once accepted, the request body stays open as the inbound
// frame stream and the response body stays open as the outbound one, until
// the peer or Close ends it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != h.path {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := make(chan struct{})
	conn := &Conn{
		addr:       r.RemoteAddr,
		pipeWriter: nil,
		resp:       nil,
	}
	conn.serverSide(r.Body, flushWriter{w, flusher}, done)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.mu.Unlock()

	select {
	case h.pending <- conn:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	select {
	case <-done:
	case <-r.Context().Done():
		conn.Close()
	}
}

// Accept waits for and returns the next Conn a request produced.
func (h *Handler) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c, ok := <-h.pending:
		if !ok {
			return nil, ErrClosed
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// H2CHandler wraps h in HTTP/2-cleartext support, for serving this Handler
// behind a plain http.Server (including httptest.NewServer, which only
// speaks HTTP/1.1 and h2c, never TLS-negotiated HTTP/2) without a
// certificate.
func (h *Handler) H2CHandler() http.Handler {
	return h2c.NewHandler(h, &http2.Server{})
}

// Close stops Accept from returning new connections. Already-accepted
// Conns are unaffected.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.pending)
	return nil
}

// flushWriter adapts an http.ResponseWriter/http.Flusher pair to a plain
// io.Writer that flushes after every write, so a Multiplexer's frames reach
// the client as soon as they're written rather than sitting in a buffer.
type flushWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err != nil {
		return n, err
	}
	fw.flusher.Flush()
	return n, nil
}

// serverSide wires this Conn's BrokerSession to a request's body/response
// stream instead of Dial's pipe/response pair. done is closed once the
// Conn is closed, letting ServeHTTP's goroutine unblock.
func (c *Conn) serverSide(body io.ReadCloser, w io.Writer, done chan struct{}) {
	c.mu.Lock()
	mux := wire.New(c.addr, body, w, 64*1024, 64*1024, func() error {
		defer close(done)
		return body.Close()
	})
	mux.Start()
	c.mux = mux
	c.mu.Unlock()
}

var _ transport.Connection = (*Conn)(nil)
