package codec

// NewDefaultRegistry returns a Registry with JSON, Protobuf, Capnp, and
// Flatbuffers already registered under their Name()s.
func NewDefaultRegistry() *Registry {
	return NewRegistry().
		Register(JSON).
		Register(Protobuf).
		Register(Capnp).
		Register(Flatbuffers)
}
