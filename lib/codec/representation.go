package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ValentinKolb/sqkv/lib/common"
)

// representationCodec converts an application value to bytes and back.
type representationCodec struct {
	name   string
	encode func(v any) ([]byte, error)
	decode func(data []byte) (any, error)
}

// representationCodecs is the closed set of representation codecs
var representationCodecs = map[Mnemonic]representationCodec{
	MnemonicUTF8:  {name: "utf8", encode: utf8Encode, decode: utf8Decode},
	MnemonicBytes: {name: "bytes", encode: bytesEncode, decode: bytesDecode},
	MnemonicJSON:  {name: "json", encode: jsonEncode, decode: jsonDecode},
	MnemonicGob:   {name: "gob", encode: gobEncode, decode: gobDecode},
}

func init() {
	// generic containers produced by the json codec, so gob can carry them too
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// Register records the concrete type of value with the gob codec. Every
// non-basic type stored with the gob codec (structs, typed maps such as
// map[string]int, typed slices) must be registered by the writing and the
// reading process, otherwise encoding fails with common.ErrType and decoding
// with common.ErrDecode. map[string]any and []any are registered already.
func Register(value any) {
	gob.Register(value)
}

// --------------------------------------------------------------------------
// UTF-8
// --------------------------------------------------------------------------

func utf8Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, common.Errorf(common.RetCType, "expected string, got %T", v)
	}
	return []byte(s), nil
}

func utf8Decode(data []byte) (any, error) {
	return string(data), nil
}

// --------------------------------------------------------------------------
// Bytes
// --------------------------------------------------------------------------

func bytesEncode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, common.Errorf(common.RetCType, "expected []byte, got %T", v)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func bytesDecode(data []byte) (any, error) {
	return data, nil
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

func jsonEncode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.WrapError(common.RetCType, err, fmt.Sprintf("value of type %T is not JSON serializable", v))
	}
	return b, nil
}

func jsonDecode(data []byte) (any, error) {
	return UnmarshalJSON(data)
}

// UnmarshalJSON decodes a single JSON document into generic containers
// (map[string]any, []any, string, bool, nil and numbers). Numbers are
// converted by NormalizeNumbers.
func UnmarshalJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, common.WrapError(common.RetCDecode, err, "invalid json payload")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, common.NewError(common.RetCDecode, "invalid json payload: data after the top-level value")
	}
	return NormalizeNumbers(v)
}

// NormalizeNumbers replaces every json.Number in v, which must come from a
// decoder with UseNumber set. Integers that fit into an int64 become int64,
// so ids above 2^53 keep their exact value. All other numbers become float64.
// Maps and slices are modified in place.
func NormalizeNumbers(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, common.WrapError(common.RetCDecode, err, fmt.Sprintf("number %s out of range", v))
		}
		return f, nil
	case map[string]any:
		for k, elem := range v {
			n, err := NormalizeNumbers(elem)
			if err != nil {
				return nil, err
			}
			v[k] = n
		}
		return v, nil
	case []any:
		for i, elem := range v {
			n, err := NormalizeNumbers(elem)
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	default:
		return v, nil
	}
}

// --------------------------------------------------------------------------
// Gob
// --------------------------------------------------------------------------

// gobEnvelope carries the value as an interface so gob records its concrete type
type gobEnvelope struct {
	V any
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(gobEnvelope{V: v}); err != nil {
		return nil, common.WrapError(common.RetCType, err, fmt.Sprintf("value of type %T is not gob serializable", v))
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte) (any, error) {
	var env gobEnvelope
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&env); err != nil {
		return nil, common.WrapError(common.RetCDecode, err, "invalid gob payload")
	}
	return env.V, nil
}
