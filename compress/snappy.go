package compress

import (
	"github.com/golang/snappy"

	"github.com/ymmah/messaging/envelope"
)

// Snappy implements Compressor using github.com/golang/snappy, tuned for
// speed over compression ratio.
type Snappy struct{}

// Type returns envelope.CmpSnappy.
func (s *Snappy) Type() envelope.Compression { return envelope.CmpSnappy }

// Compress compresses data using Snappy.
func (s *Snappy) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress decompresses Snappy data.
func (s *Snappy) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
