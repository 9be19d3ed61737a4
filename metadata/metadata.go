// Package metadata carries caller-supplied key/value pairs alongside a call,
// the way HTTP headers ride alongside a request. Metadata travels on the
// wire inside an Envelope's own Properties table, prefixed so it can never
// collide with a well-known wire property.
package metadata

import (
	"encoding/base64"
	"strings"

	"github.com/gostdlib/base/context"
)

// MD is a mapping from metadata keys to values. Keys are case-insensitive.
type MD map[string][]byte

// New creates metadata from key-value pairs, provided as (key, value, key,
// value, ...).
func New(kv ...string) MD {
	if len(kv)%2 != 0 {
		panic("metadata: New requires even number of arguments")
	}
	md := make(MD, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		md[strings.ToLower(kv[i])] = []byte(kv[i+1])
	}
	return md
}

// Pairs creates metadata from key-value pairs whose values are string or
// []byte, provided as (key, value, key, value, ...).
func Pairs(kv ...any) MD {
	if len(kv)%2 != 0 {
		panic("metadata: Pairs requires even number of arguments")
	}
	md := make(MD, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic("metadata: Pairs key must be string")
		}
		key = strings.ToLower(key)
		switch v := kv[i+1].(type) {
		case string:
			md[key] = []byte(v)
		case []byte:
			md[key] = v
		default:
			panic("metadata: Pairs value must be string or []byte")
		}
	}
	return md
}

// Get retrieves a metadata value by key. Keys are case-insensitive.
func (md MD) Get(key string) []byte { return md[strings.ToLower(key)] }

// GetString retrieves a metadata value as a string, or "" if absent.
func (md MD) GetString(key string) string {
	if v := md[strings.ToLower(key)]; v != nil {
		return string(v)
	}
	return ""
}

// Set sets a metadata key to a value. Keys are case-insensitive.
func (md MD) Set(key string, value []byte) { md[strings.ToLower(key)] = value }

// SetString sets a metadata key to a string value.
func (md MD) SetString(key, value string) { md[strings.ToLower(key)] = []byte(value) }

// Delete removes a metadata key.
func (md MD) Delete(key string) { delete(md, strings.ToLower(key)) }

// Clone returns a deep copy of md.
func (md MD) Clone() MD {
	if md == nil {
		return nil
	}
	clone := make(MD, len(md))
	for k, v := range md {
		vCopy := make([]byte, len(v))
		copy(vCopy, v)
		clone[k] = vCopy
	}
	return clone
}

// Len returns the number of metadata entries.
func (md MD) Len() int { return len(md) }

// wirePrefix namespaces metadata keys inside an Envelope's Properties table
// so they can never be mistaken for one of the well-known wire properties.
const wirePrefix = "md-"

// ToProperties writes md into props (an Envelope's Properties map), base64
// encoding each value since metadata may carry arbitrary bytes but a
// property value is a string. A nil or empty md is a no-op.
func (md MD) ToProperties(props map[string]string) {
	for k, v := range md {
		props[wirePrefix+k] = base64.StdEncoding.EncodeToString(v)
	}
}

// FromProperties extracts metadata previously written by ToProperties out of
// an Envelope's Properties table. Malformed base64 for a given key is
// skipped rather than failing the whole call.
func FromProperties(props map[string]string) MD {
	var md MD
	for k, v := range props {
		if !strings.HasPrefix(k, wirePrefix) {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			continue
		}
		if md == nil {
			md = MD{}
		}
		md[strings.TrimPrefix(k, wirePrefix)] = decoded
	}
	return md
}

type mdKey struct{}

// NewContext returns a context carrying md, retrievable with FromContext.
func NewContext(ctx context.Context, md MD) context.Context {
	return context.WithValue(ctx, mdKey{}, md)
}

// FromContext retrieves metadata attached by NewContext.
func FromContext(ctx context.Context) (MD, bool) {
	md, ok := ctx.Value(mdKey{}).(MD)
	return md, ok
}

// AppendToContext appends key-value pairs to the metadata already on ctx, or
// creates it if none is attached, without mutating whatever MD the caller
// already holds a reference to.
func AppendToContext(ctx context.Context, kv ...string) context.Context {
	md, ok := FromContext(ctx)
	if !ok {
		md = New(kv...)
	} else {
		md = md.Clone()
		for i := 0; i < len(kv); i += 2 {
			md.SetString(kv[i], kv[i+1])
		}
	}
	return NewContext(ctx, md)
}
