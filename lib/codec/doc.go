// Package codec converts application values into tagged byte payloads and back.
//
// A value is first converted to bytes by a representation codec and the result
// is then optionally compressed by a compression codec. Every codec is
// identified by a one-byte Mnemonic, and the list of applied codecs (the Chain)
// is stored next to the payload, so a reader can always decode a record no
// matter which settings the writer used.
//
// Key Components:
//
//   - Representation codecs: utf8 ('U') for strings, bytes ('B') for byte
//     slices, json ('J') for structured data and gob ('G') for arbitrary
//     registered Go types. The codec is chosen from the shape of the value.
//
//   - Compression codecs: snappy ('s', framing format) and zstd ('z', level
//     1 to 22). Payloads shorter than CompressionThreshold are stored as is.
//
//   - Pipeline: holds the Settings of a store and runs Encode and DecodeChain.
//
// Trust boundary:
//
//	Decoding gob data instantiates arbitrary registered Go types. The gob codec
//	is therefore disabled unless Settings.AllowGob is set, for both encoding and
//	decoding. Non-string, non-byte values fall back to json when gob is off.
//
// Thread Safety:
//
//	All codecs are stateless or internally synchronized. zstd encoders are built
//	lazily once per level and shared, snappy writers are pooled.
//
// Usage:
//
//	c, err := codec.ParseCompression("zstd:9")
//	p := codec.NewPipeline(codec.Settings{Compression: c})
//	enc, err := p.Encode(map[string]any{"a": 1})
//	// ... persist enc.Chain.Bytes() and enc.Data ...
//	v, err := p.DecodeChain(codec.ChainFromBytes(chainBytes), data)
package codec
