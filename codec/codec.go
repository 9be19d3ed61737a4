// Package codec lets an Envelope's Payload carry a self-describing encoding
// instead of opaque bytes. A Codec converts between a Go value and wire
// bytes; a Registry picks one by the name carried in
// envelope.PropPayloadCodec. The session layer never looks inside Payload
// itself — encoding and decoding is entirely the caller's business, done
// before Signal and after GetResponses.
package codec

import (
	"fmt"
	"sync"
)

// Codec encodes a Go value to wire bytes and back. Name is the token stored
// in envelope.PropPayloadCodec so a peer can pick the matching Codec on
// decode.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// Registry looks up a Codec by name.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register adds c under its Name, replacing any existing Codec with the
// same name. Returns r so calls can chain.
func (r *Registry) Register(c Codec) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.Name()] = c
	return r
}

// Get returns the Codec registered under name, if any.
func (r *Registry) Get(name string) (Codec, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	return c, ok
}

// Encode looks up name in r and encodes v with it.
func (r *Registry) Encode(name string, v any) ([]byte, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("codec: no codec registered for %q", name)
	}
	return c.Encode(v)
}

// Decode looks up name in r and decodes data into v with it.
func (r *Registry) Decode(name string, data []byte, v any) error {
	c, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("codec: no codec registered for %q", name)
	}
	return c.Decode(data, v)
}
