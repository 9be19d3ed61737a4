package codec

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// Flatbuffers moves already-framed FlatBuffers bytes. Encode requires v to
// be a *flatbuffers.Builder that has already called Finish; Decode requires
// v to be a *[]byte it fills with the raw buffer. Root-table field access is
// left to a generated schema's accessors, which read directly off those
// bytes.
var Flatbuffers Codec = flatbuffersCodec{}

type flatbuffersCodec struct{}

func (flatbuffersCodec) Name() string { return "flatbuffers" }

func (flatbuffersCodec) Encode(v any) ([]byte, error) {
	b, ok := v.(*flatbuffers.Builder)
	if !ok {
		return nil, fmt.Errorf("codec: flatbuffers: %T is not a *flatbuffers.Builder", v)
	}
	return b.FinishedBytes(), nil
}

func (flatbuffersCodec) Decode(data []byte, v any) error {
	dst, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("codec: flatbuffers: %T is not a *[]byte", v)
	}
	*dst = data
	return nil
}
