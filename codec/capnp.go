package codec

import (
	"fmt"

	"capnproto.org/go/capnp/v3"
)

// Capnp encodes and decodes Cap'n Proto messages. Encode requires v to be a
// *capnp.Message built against a generated schema's arena; Decode requires v
// to be a **capnp.Message it can populate. Field-level access is left to the
// generated accessors for whatever schema the caller is using — this codec
// only moves the framed bytes.
var Capnp Codec = capnpCodec{}

type capnpCodec struct{}

func (capnpCodec) Name() string { return "capnp" }

func (capnpCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*capnp.Message)
	if !ok {
		return nil, fmt.Errorf("codec: capnp: %T is not a *capnp.Message", v)
	}
	return msg.Marshal()
}

func (capnpCodec) Decode(data []byte, v any) error {
	dst, ok := v.(**capnp.Message)
	if !ok {
		return fmt.Errorf("codec: capnp: %T is not a **capnp.Message", v)
	}
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}
	*dst = msg
	return nil
}
