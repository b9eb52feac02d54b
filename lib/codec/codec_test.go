package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int
	Tag  string
}

func init() {
	Register(point{})
}

// testPipelines is a map of pipeline name to factory function
var testPipelines = map[string]func() *Pipeline{
	"Snappy":      func() *Pipeline { return NewPipeline(Settings{Compression: MustParseCompression("snappy")}) },
	"Zstd":        func() *Pipeline { return NewPipeline(Settings{Compression: MustParseCompression("zstd")}) },
	"Zstd22":      func() *Pipeline { return NewPipeline(Settings{Compression: MustParseCompression("zstd:22")}) },
	"SnappyGob":   func() *Pipeline { return NewPipeline(Settings{AllowGob: true, Compression: MustParseCompression("snappy")}) },
	"ZstdGob":     func() *Pipeline { return NewPipeline(Settings{AllowGob: true, Compression: MustParseCompression("zstd:1")}) },
	"ZeroSetting": func() *Pipeline { return NewPipeline(Settings{}) },
}

// largeText returns a compressible string of at least n bytes
func largeText(n int) string {
	return strings.Repeat("lorem ipsum dolor sit amet ", n/27+1)
}

// testValues returns JSON-native values of both size classes
func testValues() map[string]any {
	return map[string]any{
		"EmptyString":  "",
		"SmallString":  "hello",
		"Unicode":      "äöü ✓ 日本語",
		"LargeString":  largeText(4096),
		"EmptyBytes":   []byte{},
		"SmallBytes":   []byte{0x00, 0xff, 0x10},
		"LargeBytes":   bytes.Repeat([]byte{1, 2, 3, 4}, 1024),
		"Number":       int64(42),
		"BigInt":       int64(1<<60 + 1),
		"Float":        3.5,
		"Bool":         true,
		"Nil":          nil,
		"SmallMap":     map[string]any{"a": int64(1), "b": "two"},
		"SmallList":    []any{int64(-1), "two", false},
		"LargeMap":     map[string]any{"text": largeText(2048), "list": []any{"x", "y"}},
		"NestedStruct": map[string]any{"inner": map[string]any{"deep": []any{map[string]any{"k": "v"}}}},
	}
}

// TestPipelineRoundTrip tests that values can be encoded and decoded by every pipeline
func TestPipelineRoundTrip(t *testing.T) {
	for name, factory := range testPipelines {
		t.Run(name, func(t *testing.T) {
			p := factory()
			for valName, v := range testValues() {
				enc, err := p.Encode(v)
				require.NoError(t, err, valName)

				got, err := p.DecodeChain(enc.Chain, enc.Data)
				require.NoError(t, err, valName)

				switch want := v.(type) {
				case []byte:
					assert.True(t, bytes.Equal(want, got.([]byte)), valName)
				default:
					assert.Equal(t, v, got, valName)
				}
			}
		})
	}
}

// TestChainLength tests that compression is applied exactly at the threshold
func TestChainLength(t *testing.T) {
	p := NewPipeline(Settings{Compression: MustParseCompression("zstd")})

	below, err := p.Encode(strings.Repeat("a", CompressionThreshold-1))
	require.NoError(t, err)
	assert.Equal(t, Chain{MnemonicUTF8}, below.Chain)
	assert.False(t, below.Chain.IsCompressed())

	at, err := p.Encode(strings.Repeat("a", CompressionThreshold))
	require.NoError(t, err)
	assert.Equal(t, Chain{MnemonicUTF8, MnemonicZstd}, at.Chain)
	assert.Less(t, len(at.Data), CompressionThreshold)
}

// TestRepresentationSelection tests that the representation codec follows the value shape
func TestRepresentationSelection(t *testing.T) {
	jsonP := NewPipeline(Settings{})
	gobP := NewPipeline(Settings{AllowGob: true})

	cases := []struct {
		name    string
		value   any
		p       *Pipeline
		want    Mnemonic
		wantErr common.RetCode
	}{
		{"string", "x", jsonP, MnemonicUTF8, common.RetCSuccess},
		{"bytes", []byte("x"), jsonP, MnemonicBytes, common.RetCSuccess},
		{"map json", map[string]any{"a": 1}, jsonP, MnemonicJSON, common.RetCSuccess},
		{"map gob", map[string]any{"a": 1}, gobP, MnemonicGob, common.RetCSuccess},
		{"string gob", "x", gobP, MnemonicUTF8, common.RetCSuccess},
		{"chan json", make(chan int), jsonP, 0, common.RetCType},
		{"func gob", func() {}, gobP, 0, common.RetCType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, m, err := tc.p.EncodeValue(tc.value)
			assert.Equal(t, tc.wantErr, common.CodeOf(err))
			assert.Equal(t, tc.want, m)
		})
	}
}

// TestBytesCodecRejectsOtherTypes tests the type check of the byte codec
func TestBytesCodecRejectsOtherTypes(t *testing.T) {
	_, err := representationCodecs[MnemonicBytes].encode("not bytes")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrType))

	_, err = representationCodecs[MnemonicUTF8].encode(42)
	assert.True(t, errors.Is(err, common.ErrType))
}

// TestGobStruct tests that registered structs survive the gob codec
func TestGobStruct(t *testing.T) {
	p := NewPipeline(Settings{AllowGob: true})

	for _, v := range []any{point{X: 1, Y: -2, Tag: "p"}, point{Tag: largeText(2000)}} {
		enc, err := p.Encode(v)
		require.NoError(t, err)
		assert.Equal(t, MnemonicGob, enc.Chain.Representation())

		got, err := p.DecodeChain(enc.Chain, enc.Data)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

// TestGobUnregistered tests that typed containers need Register before gob can carry them
func TestGobUnregistered(t *testing.T) {
	p := NewPipeline(Settings{AllowGob: true})

	_, err := p.Encode(map[string]uint16{"a": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrType))

	Register(map[string]int8{})
	enc, err := p.Encode(map[string]int8{"a": 1})
	require.NoError(t, err)
	got, err := p.DecodeChain(enc.Chain, enc.Data)
	require.NoError(t, err)
	assert.Equal(t, map[string]int8{"a": 1}, got)
}

// TestJSONNumbers tests that integers keep their exact value through the json codec
func TestJSONNumbers(t *testing.T) {
	p := NewPipeline(Settings{})

	in := map[string]any{"id": int64(1<<60 + 1), "neg": int64(-7), "ratio": 0.25, "list": []any{int64(1), 1.5}}
	enc, err := p.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, MnemonicJSON, enc.Chain.Representation())

	got, err := p.DecodeChain(enc.Chain, enc.Data)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	cases := map[string]any{
		`12`:                   int64(12),
		`1.0`:                  1.0,
		`1e3`:                  1000.0,
		`9223372036854775808`:  9.223372036854775808e18,
		`{"a":[1,{"b":2.5}]} `: map[string]any{"a": []any{int64(1), map[string]any{"b": 2.5}}},
	}
	for doc, want := range cases {
		v, err := UnmarshalJSON([]byte(doc))
		require.NoError(t, err, doc)
		assert.Equal(t, want, v, doc)
	}
}

// TestGobGate tests that gob data cannot be read without AllowGob
func TestGobGate(t *testing.T) {
	writer := NewPipeline(Settings{AllowGob: true})
	reader := NewPipeline(Settings{})

	enc, err := writer.Encode(map[string]any{"k": "v"})
	require.NoError(t, err)

	_, err = reader.DecodeChain(enc.Chain, enc.Data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrGobNotAllowed))
	assert.False(t, errors.Is(err, common.ErrDecode))
}

// TestDecodeAcrossSettings tests that a reader decodes data written with other compression settings
func TestDecodeAcrossSettings(t *testing.T) {
	writer := NewPipeline(Settings{Compression: MustParseCompression("zstd:19")})
	reader := NewPipeline(Settings{Compression: MustParseCompression("snappy")})

	v := largeText(5000)
	enc, err := writer.Encode(v)
	require.NoError(t, err)

	got, err := reader.DecodeChain(enc.Chain, enc.Data)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

// TestDecodeLongChain tests that chains with several compression stages decode in reverse order
func TestDecodeLongChain(t *testing.T) {
	p := NewPipeline(Settings{})
	payload := []byte(largeText(3000))

	stage1, err := snappyEncode(payload, 0)
	require.NoError(t, err)
	stage2, err := zstdEncode(stage1, 5)
	require.NoError(t, err)
	stage3, err := snappyEncode(stage2, 0)
	require.NoError(t, err)

	chain := Chain{MnemonicBytes, MnemonicSnappy, MnemonicZstd, MnemonicSnappy}
	got, err := p.DecodeChain(chain, stage3)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestDecodeErrors tests malformed chains
func TestDecodeErrors(t *testing.T) {
	p := NewPipeline(Settings{AllowGob: true})

	cases := []struct {
		name  string
		chain Chain
		data  []byte
		code  common.RetCode
	}{
		{"empty chain", Chain{}, []byte("x"), common.RetCDecode},
		{"unknown representation", Chain{'Q'}, []byte("x"), common.RetCDecode},
		{"compression as representation", Chain{MnemonicZstd}, []byte("x"), common.RetCDecode},
		{"unknown compression", Chain{MnemonicUTF8, 'Q'}, []byte("x"), common.RetCDecode},
		{"representation as compression", Chain{MnemonicUTF8, MnemonicJSON}, []byte("x"), common.RetCDecode},
		{"corrupt json", Chain{MnemonicJSON}, []byte("{"), common.RetCDecode},
		{"trailing json", Chain{MnemonicJSON}, []byte("{} {}"), common.RetCDecode},
		{"json number out of range", Chain{MnemonicJSON}, []byte("1e400"), common.RetCDecode},
		{"corrupt zstd", Chain{MnemonicUTF8, MnemonicZstd}, []byte("not zstd"), common.RetCEncoding},
		{"corrupt snappy", Chain{MnemonicUTF8, MnemonicSnappy}, []byte("not snappy"), common.RetCEncoding},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.DecodeChain(tc.chain, tc.data)
			require.Error(t, err)
			assert.Equal(t, tc.code, common.CodeOf(err))
		})
	}
}

// TestParseCompression tests the compression selector
func TestParseCompression(t *testing.T) {
	valid := map[string]Compression{
		"snappy":  {Mnemonic: MnemonicSnappy},
		"zstd":    {Mnemonic: MnemonicZstd, Level: DefaultZstdLevel},
		"zstd:1":  {Mnemonic: MnemonicZstd, Level: 1},
		"zstd:22": {Mnemonic: MnemonicZstd, Level: 22},
	}
	for s, want := range valid {
		got, err := ParseCompression(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	invalid := map[string]string{
		"gzip":    "Unknown compression algorithm: gzip",
		"":        "Unknown compression algorithm",
		"Snappy":  "Unknown compression algorithm",
		"zstd:0":  "must be between 1 and 22, got: 0",
		"zstd:23": "must be between 1 and 22, got: 23",
		"zstd:-1": "must be between 1 and 22, got: -1",
		"zstd:x":  "Invalid zstd compression level: x",
		"zstd:":   "Invalid zstd compression level",
	}
	for s, msg := range invalid {
		_, err := ParseCompression(s)
		require.Error(t, err, s)
		assert.True(t, errors.Is(err, common.ErrConfig), s)
		assert.Contains(t, err.Error(), msg, s)
	}
}

// TestMnemonicsUnique tests that no mnemonic is shared by two codecs
func TestMnemonicsUnique(t *testing.T) {
	for m := range representationCodecs {
		_, clash := compressionCodecs[m]
		assert.False(t, clash, "mnemonic %q used twice", byte(m))
	}
}

// TestChainBytes tests the persisted form of a chain
func TestChainBytes(t *testing.T) {
	c := Chain{MnemonicJSON, MnemonicZstd}
	assert.Equal(t, []byte("Jz"), c.Bytes())
	assert.Equal(t, c, ChainFromBytes([]byte("Jz")))
	assert.Equal(t, "json+zstd", c.String())
	assert.Equal(t, Mnemonic(0), Chain{}.Representation())
}
