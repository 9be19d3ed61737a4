package errors

var categoryNames = map[Category]string{
	CatUnknown:       "Unknown",
	CatTransport:     "Transport",
	CatProtocol:      "Protocol",
	CatFragmentation: "Fragmentation",
	CatTimeout:       "Timeout",
	CatSink:          "Sink",
}

// String implements fmt.Stringer. Hand-written in place of `stringer`
// codegen output, which is not checked into this tree.
func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "Category(unknown)"
}

var typeNames = map[Type]string{
	TypeUnknown:           "Unknown",
	TypeConnClosed:        "ConnClosed",
	TypeSendFailed:        "SendFailed",
	TypeReconnectFail:     "ReconnectFail",
	TypeMalformedEnvelope: "MalformedEnvelope",
	TypeVersionMismatch:   "VersionMismatch",
	TypeUnexpectedMsgType: "UnexpectedMsgType",
	TypeValidationFailed:  "ValidationFailed",
	TypeRateLimited:       "RateLimited",
	TypeDigestMismatch:    "DigestMismatch",
	TypeMissingFragment:   "MissingFragment",
	TypeDeadlineExceeded:  "DeadlineExceeded",
	TypeCanceled:          "Canceled",
	TypeSinkPanic:         "SinkPanic",
	TypeSinkError:         "SinkError",
}

// String implements fmt.Stringer. Hand-written in place of `stringer`
// codegen output, which is not checked into this tree.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "Type(unknown)"
}
