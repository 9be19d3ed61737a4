package envelope

// Compression identifies the wire compression algorithm applied to an
// Envelope's Payload before it left the sender, per spec §6's producer-side
// compression configuration (none/gzip/snappy/lz4/zstd). Package compress
// does the compressing and decompressing; the algorithm selected travels on
// the wire as an ordinary property so a receiver can reverse it before
// handing Payload to a codec.Codec.
type Compression uint8

const (
	// CmpNone carries Payload uncompressed.
	CmpNone Compression = iota
	// CmpGzip compresses Payload with compress/gzip.
	CmpGzip
	// CmpSnappy compresses Payload with github.com/golang/snappy.
	CmpSnappy
	// CmpLz4 compresses Payload with lz4. No lz4 library is available in
	// this build (see package compress); this constant exists so the wire
	// property round-trips even though the registry has no entry for it.
	CmpLz4
	// CmpZstd compresses Payload with github.com/klauspost/compress/zstd.
	CmpZstd
)

var compressionNames = map[Compression]string{
	CmpNone:   "none",
	CmpGzip:   "gzip",
	CmpSnappy: "snappy",
	CmpLz4:    "lz4",
	CmpZstd:   "zstd",
}

var compressionByName = func() map[string]Compression {
	m := make(map[string]Compression, len(compressionNames))
	for c, n := range compressionNames {
		m[n] = c
	}
	return m
}()

// String implements fmt.Stringer.
func (c Compression) String() string {
	if s, ok := compressionNames[c]; ok {
		return s
	}
	return "unknown"
}

// ParseCompression resolves a configuration string to a Compression,
// defaulting to CmpNone for an unrecognized token.
func ParseCompression(s string) Compression {
	if c, ok := compressionByName[s]; ok {
		return c
	}
	return CmpNone
}

// PropCompression is the wire property carrying the Compression applied to
// Payload, alongside the well-known properties in envelope.go.
const PropCompression = "Compression"
