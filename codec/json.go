package codec

import (
	"github.com/go-json-experiment/json"
)

// JSON encodes and decodes with github.com/go-json-experiment/json, the
// general-purpose default for payloads that don't need a fixed schema.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
