package compress

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/ymmah/messaging/envelope"
)

// Gzip implements Compressor using the standard library's gzip writer.
type Gzip struct {
	// Level is the compression level. Zero defaults to gzip.DefaultCompression.
	Level int
}

// Type returns envelope.CmpGzip.
func (g *Gzip) Type() envelope.Compression { return envelope.CmpGzip }

// Compress compresses data using gzip.
func (g *Gzip) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses gzip data.
func (g *Gzip) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
