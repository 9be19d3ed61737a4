// Package wire provides the length-prefixed Envelope framing and the
// single-stream destination multiplexing shared by every concrete
// transport.Connection implementation in this module (transport/tcp,
// transport/http2): each physical connection carries an interleaved stream
// of Envelopes for potentially many destinations, the way a raw byte-stream
// transport has no broker-side queues of its own to address.
package wire

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ymmah/messaging/envelope"
	"github.com/ymmah/messaging/internal/binary"
)

// MaxFrameSize bounds a single frame's length prefix, guarding against a
// corrupt or hostile peer claiming a multi-gigabyte frame.
const MaxFrameSize = 256 * 1024 * 1024

// WriteFrame writes one length-prefixed Envelope to w and flushes it.
func WriteFrame(w *bufio.Writer, env *envelope.Envelope) error {
	data, err := (envelope.Codec{}).Encode(env)
	if err != nil {
		return fmt.Errorf("wire: encode envelope: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds max %d", len(data), MaxFrameSize)
	}

	var lenBuf [4]byte
	binary.Put(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}

// ReadFrame reads one length-prefixed Envelope from r.
func ReadFrame(r *bufio.Reader) (*envelope.Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.Get[uint32](lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds max %d", n, MaxFrameSize)
	}

	data := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
	}
	return (envelope.Codec{}).Decode(data)
}
