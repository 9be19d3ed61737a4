// Package compress provides the payload compressors named by spec §6's
// producer-side configuration (none/gzip/snappy/lz4/zstd). Envelope itself
// treats payload bytes as opaque: client.Client.Signal and
// server.ResponseContext.AddResponse call Compress and set
// Envelope.Compression, and the receiving side calls Decompress.
package compress

import (
	"fmt"

	"github.com/gostdlib/base/concurrency/sync"

	"github.com/ymmah/messaging/envelope"
)

// Compressor compresses and decompresses payload bytes for one algorithm.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() envelope.Compression
}

// ErrNotRegistered is returned by Compress/Decompress for an algorithm with
// no registered Compressor — currently CmpLz4, for which no lz4 library is
// available to this build (see DESIGN.md).
var ErrNotRegistered = fmt.Errorf("compress: no compressor registered for this type")

var (
	registry   = map[envelope.Compression]Compressor{}
	registryMu sync.RWMutex
)

// Register adds c to the registry, keyed by c.Type(). Thread-safe; intended
// for both the built-ins registered below and custom algorithms a caller
// wants to add.
func Register(c Compressor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Type()] = c
}

// Get returns the Compressor registered for t, or nil.
func Get(t envelope.Compression) Compressor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[t]
}

// Compress compresses data with the algorithm named by t. CmpNone and an
// empty payload are passed through unchanged.
func Compress(t envelope.Compression, data []byte) ([]byte, error) {
	if t == envelope.CmpNone || len(data) == 0 {
		return data, nil
	}
	c := Get(t)
	if c == nil {
		return nil, ErrNotRegistered
	}
	return c.Compress(data)
}

// Decompress reverses Compress.
func Decompress(t envelope.Compression, data []byte) ([]byte, error) {
	if t == envelope.CmpNone || len(data) == 0 {
		return data, nil
	}
	c := Get(t)
	if c == nil {
		return nil, ErrNotRegistered
	}
	return c.Decompress(data)
}

func init() {
	Register(&Gzip{})
	Register(&Snappy{})
	Register(&Zstd{})
}
