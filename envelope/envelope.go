// Package envelope defines the wire message carried between a RequestHandler
// and a ResponseContext: the Envelope type, its message-type and protocol-
// version enums, and the property keys that appear on the wire alongside the
// payload.
package envelope

// ProtocolVersion identifies the wire format a peer negotiated for a call.
// A ResponseContext pins the version observed on the inbound Signal and uses
// it for every response it emits for that call.
type ProtocolVersion string

const (
	// V1 is the original protocol version.
	V1 ProtocolVersion = "13.10.1"
	// V2 adds fragmentation and channel-upload support.
	V2 ProtocolVersion = "16"
)

// Type identifies the kind of message an Envelope carries.
type Type uint8

const (
	// TUnknown marks a message type this build does not recognize. Decode
	// produces it when the envelope's MessageType token is missing or not
	// one this build knows, so forward-compatible peers can silently drop
	// what they don't understand instead of failing the call.
	TUnknown Type = iota
	// TSignal is a client call into a RequestSink.
	TSignal
	// TSignalFragment carries one piece of a fragmented Signal or Response.
	TSignalFragment
	// TEndOfFragmentedMessage terminates a fragment sequence and carries the
	// total fragment count and digest needed to validate reassembly.
	TEndOfFragmentedMessage
	// TSignalResponse carries one response value for a call.
	TSignalResponse
	// TStreamClosed marks the end of a call's response stream.
	TStreamClosed
	// TExtendWait is the watchdog's keep-alive, sent while a sink is still
	// working and has not produced a response within the keep-alive window.
	TExtendWait
	// TException carries a terminal error for a call.
	TException
	// TChannelRequest opens (or continues) a large-upload channel.
	TChannelRequest
	// TChannelSetup acknowledges a channel-upload request. It names no
	// destination: the client streams the upload's fragments to the same
	// destination it sent the ChannelRequest to.
	TChannelSetup
)

// wireTypeNames is the canonical string token for each Type, per the wire
// property table. Decode uses this to turn an unrecognized token into
// TUnknown rather than failing.
var wireTypeNames = map[Type]string{
	TSignal:                 "Signal",
	TSignalFragment:         "SignalFragment",
	TEndOfFragmentedMessage: "EndOfFragmentedMessage",
	TSignalResponse:         "SignalResponse",
	TStreamClosed:           "StreamClosed",
	TExtendWait:             "ExtendWait",
	TException:              "Exception",
	TChannelRequest:         "ChannelRequest",
	TChannelSetup:           "ChannelSetup",
}

var wireNameTypes = func() map[string]Type {
	m := make(map[string]Type, len(wireTypeNames))
	for t, n := range wireTypeNames {
		m[n] = t
	}
	return m
}()

// String returns the wire token for t, or "" for TUnknown.
func (t Type) String() string {
	return wireTypeNames[t]
}

// ParseType resolves a wire token to a Type. An unrecognized token yields
// TUnknown rather than an error: per spec, unknown message types are dropped
// silently, not treated as a protocol error.
func ParseType(s string) Type {
	if t, ok := wireNameTypes[s]; ok {
		return t
	}
	return TUnknown
}

// Well-known wire property keys, per the wire property table.
const (
	PropProtocolVersion = "ArgusMessagingProtocol"
	PropMessageType     = "MessageType"
	PropResponseID      = "ResponseID"
	PropFragmentIndex   = "FragmentIndex"
	PropFragmentsTotal  = "FragmentsTotal"
	PropChecksumMD5     = "DataChecksumMD5"
	PropReqTimeout      = "ReqTimeout"
	// PropPayloadCodec names the codec.Codec that encoded Payload, when one
	// was used. Absent for a plain opaque payload; see package codec.
	PropPayloadCodec = "PayloadCodec"
)

// CallID is an opaque, client-generated correlation id threaded through
// every Envelope belonging to one call.
type CallID string

// ResponseID is server-generated and groups the fragments of one large
// response or upload together. Two responses to the same call have
// different ResponseIDs; fragments of the same response share one.
type ResponseID string

// Destination is an opaque descriptor for a reply-to location (a queue,
// topic, or temporary destination name) meaningful to the Transport.
type Destination string

// Envelope is the unit exchanged between a RequestHandler and a
// ResponseContext. Properties not recognized by this build are preserved
// verbatim across a decode/re-encode round trip.
type Envelope struct {
	Version ProtocolVersion
	Type    Type
	CallID  CallID

	// ResponseID is present on TSignalResponse, TSignalFragment and
	// TEndOfFragmentedMessage; empty otherwise.
	ResponseID ResponseID

	// ReplyTo is present on TSignal and TChannelRequest; empty otherwise.
	ReplyTo Destination

	// FragmentIndex/FragmentsTotal/ChecksumMD5 are set on fragment and
	// terminator messages; zero/empty otherwise.
	FragmentIndex  int
	FragmentsTotal int
	ChecksumMD5    string

	// ReqTimeoutMillis is the absolute deadline, in epoch milliseconds, the
	// sender asks the receiver to honor. Zero means "no deadline carried".
	ReqTimeoutMillis int64

	// Compression identifies the algorithm, if any, applied to Payload by
	// the sender before transmission. CmpNone (the zero value) means
	// Payload is carried as-is.
	Compression Compression

	// Properties holds every property on the envelope, including the
	// well-known ones above (kept in sync by Codec.Encode and Codec.Decode)
	// and anything this
	// build doesn't recognize, so a decode/encode round trip never drops
	// data it can't interpret.
	Properties map[string]string

	// Payload is the opaque message body. Its interpretation is left to a
	// codec.Codec (see package codec); the session layer only compresses and
	// decompresses it and never looks inside it.
	Payload []byte
}

// New returns an Envelope with Version defaulted to V2 and an initialized
// Properties map.
func New(typ Type, callID CallID) *Envelope {
	return &Envelope{
		Version:    V2,
		Type:       typ,
		CallID:     callID,
		Properties: map[string]string{},
	}
}
