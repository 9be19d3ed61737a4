package compress

import (
	"github.com/klauspost/compress/zstd"

	"github.com/ymmah/messaging/envelope"
)

// Zstd implements Compressor using github.com/klauspost/compress/zstd.
type Zstd struct {
	// Level is the encoder level. Zero defaults to zstd.SpeedDefault.
	Level zstd.EncoderLevel
}

// Type returns envelope.CmpZstd.
func (z *Zstd) Type() envelope.Compression { return envelope.CmpZstd }

// Compress compresses data using Zstandard.
func (z *Zstd) Compress(data []byte) ([]byte, error) {
	level := z.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// Decompress decompresses Zstandard data.
func (z *Zstd) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
