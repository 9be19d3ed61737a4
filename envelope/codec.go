package envelope

import (
	"bytes"
	"crypto/md5"
	"fmt"

	"github.com/ymmah/messaging/internal/binary"
)

// Codec encodes and decodes Envelopes to and from the little-endian binary
// wire format described below. It holds no state; a zero value is ready to
// use.
//
// Wire layout (all multi-byte integers little-endian, per internal/binary):
//
//	version   string  (length-prefixed uint16)
//	type      uint8
//	callID    string  (length-prefixed uint16)
//	propCount uint16
//	  for each property: key string, value string (both length-prefixed uint16)
//	payloadLen uint32
//	payload    []byte
//
// The well-known properties (CallID excepted, which is a dedicated field)
// travel in the property table like any other property; Encode keeps them in
// sync from the typed Envelope fields before writing, and Decode populates
// the typed fields from the table after reading. This is what gives unknown
// properties (and unknown message-type tokens) a pass-through path: the
// table itself is always preserved byte-for-byte.
type Codec struct{}

// Encode serializes env to the wire format.
func (Codec) Encode(env *Envelope) ([]byte, error) {
	syncProperties(env)

	var buf bytes.Buffer
	if err := putString(&buf, string(env.Version)); err != nil {
		return nil, err
	}
	if err := binary.PutBuffer[uint8](&buf, uint8(env.Type)); err != nil {
		return nil, err
	}
	if err := putString(&buf, string(env.CallID)); err != nil {
		return nil, err
	}

	if err := binary.PutBuffer[uint16](&buf, uint16(len(env.Properties))); err != nil {
		return nil, err
	}
	for k, v := range env.Properties {
		if err := putString(&buf, k); err != nil {
			return nil, err
		}
		if err := putString(&buf, v); err != nil {
			return nil, err
		}
	}

	if err := binary.PutBuffer[uint32](&buf, uint32(len(env.Payload))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(env.Payload); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses the wire format produced by Encode. An unrecognized
// MessageType property token decodes to TUnknown rather than an error, per
// the silent-drop rule for forward compatibility; the caller is expected to
// ignore envelopes of TUnknown type.
func (Codec) Decode(data []byte) (*Envelope, error) {
	buf := bytes.NewReader(data)

	version, err := getString(buf)
	if err != nil {
		return nil, fmt.Errorf("envelope: decode version: %w", err)
	}

	var typByte [1]byte
	if _, err := buf.Read(typByte[:]); err != nil {
		return nil, fmt.Errorf("envelope: decode type: %w", err)
	}

	callID, err := getString(buf)
	if err != nil {
		return nil, fmt.Errorf("envelope: decode call id: %w", err)
	}

	var countBytes [2]byte
	if _, err := buf.Read(countBytes[:]); err != nil {
		return nil, fmt.Errorf("envelope: decode property count: %w", err)
	}
	count := binary.Get[uint16](countBytes[:])

	props := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		k, err := getString(buf)
		if err != nil {
			return nil, fmt.Errorf("envelope: decode property key: %w", err)
		}
		v, err := getString(buf)
		if err != nil {
			return nil, fmt.Errorf("envelope: decode property value: %w", err)
		}
		props[k] = v
	}

	var payloadLenBytes [4]byte
	if _, err := buf.Read(payloadLenBytes[:]); err != nil {
		return nil, fmt.Errorf("envelope: decode payload length: %w", err)
	}
	payloadLen := binary.Get[uint32](payloadLenBytes[:])

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := buf.Read(payload); err != nil {
			return nil, fmt.Errorf("envelope: decode payload: %w", err)
		}
	}

	env := &Envelope{
		Version:    ProtocolVersion(version),
		Type:       Type(typByte[0]),
		CallID:     CallID(callID),
		Properties: props,
		Payload:    payload,
	}
	hydrateFromProperties(env)
	return env, nil
}

// propReplyTo carries Envelope.ReplyTo in the property table.
const propReplyTo = "ReplyTo"

// syncProperties writes the typed well-known fields into the property table
// so Encode never has to special-case them.
func syncProperties(env *Envelope) {
	if env.Properties == nil {
		env.Properties = map[string]string{}
	}
	env.Properties[PropProtocolVersion] = string(env.Version)
	if t := env.Type.String(); t != "" {
		env.Properties[PropMessageType] = t
	}
	if env.ReplyTo != "" {
		env.Properties[propReplyTo] = string(env.ReplyTo)
	}
	if env.ResponseID != "" {
		env.Properties[PropResponseID] = string(env.ResponseID)
	}
	if env.FragmentsTotal > 0 {
		env.Properties[PropFragmentIndex] = fmt.Sprintf("%d", env.FragmentIndex)
		env.Properties[PropFragmentsTotal] = fmt.Sprintf("%d", env.FragmentsTotal)
	}
	if env.ChecksumMD5 != "" {
		env.Properties[PropChecksumMD5] = env.ChecksumMD5
	}
	if env.ReqTimeoutMillis != 0 {
		env.Properties[PropReqTimeout] = fmt.Sprintf("%d", env.ReqTimeoutMillis)
	}
	if env.Compression != CmpNone {
		env.Properties[PropCompression] = env.Compression.String()
	}
}

// hydrateFromProperties is the inverse of syncProperties, run after Decode.
// Fields corresponding to properties absent from the table are left at their
// zero value; the property table itself remains the source of truth for
// anything this build doesn't know how to interpret.
func hydrateFromProperties(env *Envelope) {
	if v, ok := env.Properties[PropMessageType]; ok {
		if env.Type == TUnknown && v != "" {
			env.Type = ParseType(v)
		}
	}
	if v, ok := env.Properties[PropResponseID]; ok {
		env.ResponseID = ResponseID(v)
	}
	if v, ok := env.Properties[propReplyTo]; ok {
		env.ReplyTo = Destination(v)
	}
	if v, ok := env.Properties[PropFragmentIndex]; ok {
		fmt.Sscanf(v, "%d", &env.FragmentIndex)
	}
	if v, ok := env.Properties[PropFragmentsTotal]; ok {
		fmt.Sscanf(v, "%d", &env.FragmentsTotal)
	}
	if v, ok := env.Properties[PropChecksumMD5]; ok {
		env.ChecksumMD5 = v
	}
	if v, ok := env.Properties[PropReqTimeout]; ok {
		fmt.Sscanf(v, "%d", &env.ReqTimeoutMillis)
	}
	if v, ok := env.Properties[PropCompression]; ok {
		env.Compression = ParseCompression(v)
	}
}

func putString(buf *bytes.Buffer, s string) error {
	if err := binary.PutBuffer[uint16](buf, uint16(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func getString(r *bytes.Reader) (string, error) {
	var lenBytes [2]byte
	if _, err := r.Read(lenBytes[:]); err != nil {
		return "", err
	}
	n := binary.Get[uint16](lenBytes[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

// MD5Sum computes the digest used to validate a reassembled fragmented
// message, per the wire property DataChecksumMD5.
func MD5Sum(data []byte) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("%x", sum)
}
