package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf encodes and decodes google.golang.org/protobuf messages. Encode
// and Decode require v to implement proto.Message; anything else is a
// caller error, not a wire error.
var Protobuf Codec = protobufCodec{}

type protobufCodec struct{}

func (protobufCodec) Name() string { return "protobuf" }

func (protobufCodec) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: protobuf: %T does not implement proto.Message", v)
	}
	return proto.Marshal(m)
}

func (protobufCodec) Decode(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: protobuf: %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}
