package codec

import (
	"github.com/ValentinKolb/sqkv/lib/common"
)

// CompressionThreshold is the minimum payload size in bytes for compression to be applied
const CompressionThreshold = 1024

// Settings configure a Pipeline. They are fixed for the lifetime of a store.
type Settings struct {
	// AllowGob enables the gob codec for encoding and decoding. With it every
	// value other than string and []byte is gob encoded, so structs and typed
	// containers such as map[string]int must be registered with Register
	// before they are encoded or decoded.
	AllowGob bool
	// Compression is applied to payloads of at least CompressionThreshold bytes
	Compression Compression
}

// Encoded is the result of running a value through the pipeline.
type Encoded struct {
	Chain Chain
	Data  []byte
}

// Pipeline encodes values into (chain, payload) pairs and decodes them again.
//
// Thread-safety:
//
//	A Pipeline is immutable and can be used from any number of goroutines.
type Pipeline struct {
	settings Settings
}

// NewPipeline creates a pipeline. A zero Compression in settings is replaced
// by the default snappy codec.
func NewPipeline(settings Settings) *Pipeline {
	if settings.Compression.Mnemonic == 0 {
		settings.Compression = Compression{Mnemonic: MnemonicSnappy}
	}
	return &Pipeline{settings: settings}
}

// Settings returns the settings of the pipeline
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// EncodeValue selects the representation codec from the shape of v and applies it:
// strings use utf8, byte slices use bytes and everything else uses gob if
// allowed and json otherwise.
func (p *Pipeline) EncodeValue(v any) ([]byte, Mnemonic, error) {
	var m Mnemonic
	switch v.(type) {
	case string:
		m = MnemonicUTF8
	case []byte:
		m = MnemonicBytes
	default:
		if p.settings.AllowGob {
			m = MnemonicGob
		} else {
			m = MnemonicJSON
		}
	}

	data, err := representationCodecs[m].encode(v)
	if err != nil {
		return nil, 0, err
	}
	return data, m, nil
}

// BestEncoding compresses payload with the configured codec. ok is false and
// the payload is returned unchanged when it is below CompressionThreshold.
func (p *Pipeline) BestEncoding(payload []byte) (data []byte, m Mnemonic, ok bool, err error) {
	if len(payload) < CompressionThreshold {
		return payload, 0, false, nil
	}

	c := p.settings.Compression
	codec, found := compressionCodecs[c.Mnemonic]
	if !found {
		return nil, 0, false, common.Errorf(common.RetCConfig, "unknown compression codec %q", byte(c.Mnemonic))
	}

	data, err = codec.encode(payload, c.Level)
	if err != nil {
		return nil, 0, false, err
	}
	return data, c.Mnemonic, true, nil
}

// Encode runs the full pipeline on v. The chain has length 2 if the payload
// was compressed and length 1 otherwise.
func (p *Pipeline) Encode(v any) (Encoded, error) {
	payload, repr, err := p.EncodeValue(v)
	if err != nil {
		return Encoded{}, err
	}

	compressed, m, ok, err := p.BestEncoding(payload)
	if err != nil {
		return Encoded{}, err
	}
	if !ok {
		return Encoded{Chain: Chain{repr}, Data: payload}, nil
	}
	return Encoded{Chain: Chain{repr, m}, Data: compressed}, nil
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// DecodeChain reverses the compression stages of chain (last applied first)
// and then decodes the payload with the representation codec.
func (p *Pipeline) DecodeChain(chain Chain, data []byte) (any, error) {
	if len(chain) == 0 {
		return nil, common.NewError(common.RetCDecode, "empty codec chain")
	}

	first, rest := chain[0], chain[1:]

	for i := len(rest) - 1; i >= 0; i-- {
		codec, ok := compressionCodecs[rest[i]]
		if !ok {
			return nil, common.Errorf(common.RetCDecode, "unknown compression codec %q", byte(rest[i]))
		}
		var err error
		if data, err = codec.decode(data); err != nil {
			return nil, err
		}
	}

	codec, ok := representationCodecs[first]
	if !ok {
		return nil, common.Errorf(common.RetCDecode, "unknown representation codec %q", byte(first))
	}
	if first == MnemonicGob && !p.settings.AllowGob {
		return nil, common.NewError(common.RetCGobNotAllowed, "gob decoding is disabled, enable AllowGob to read this value")
	}
	return codec.decode(data)
}
