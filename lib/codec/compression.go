package codec

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

const (
	// DefaultZstdLevel is used for the plain "zstd" selector
	DefaultZstdLevel = 3

	minZstdLevel = 1
	maxZstdLevel = 22
)

// --------------------------------------------------------------------------
// Compression selector
// --------------------------------------------------------------------------

// Compression is a parsed compression selector. The zero value is invalid,
// use ParseCompression.
type Compression struct {
	Mnemonic Mnemonic // MnemonicSnappy or MnemonicZstd
	Level    int      // zstd only
}

// ParseCompression parses "snappy", "zstd" or "zstd:<level>" with a level in [1,22].
func ParseCompression(s string) (Compression, error) {
	switch {
	case s == "snappy":
		return Compression{Mnemonic: MnemonicSnappy}, nil
	case s == "zstd":
		return Compression{Mnemonic: MnemonicZstd, Level: DefaultZstdLevel}, nil
	case strings.HasPrefix(s, "zstd:"):
		raw := strings.TrimPrefix(s, "zstd:")
		level, err := strconv.Atoi(raw)
		if err != nil {
			return Compression{}, common.Errorf(common.RetCConfig, "Invalid zstd compression level: %s", raw)
		}
		if level < minZstdLevel || level > maxZstdLevel {
			return Compression{}, common.Errorf(common.RetCConfig,
				"Zstd compression level must be between %d and %d, got: %d", minZstdLevel, maxZstdLevel, level)
		}
		return Compression{Mnemonic: MnemonicZstd, Level: level}, nil
	default:
		return Compression{}, common.Errorf(common.RetCConfig,
			"Unknown compression algorithm: %s. Use 'snappy', 'zstd', or 'zstd:LEVEL'", s)
	}
}

// MustParseCompression is like ParseCompression but panics on error.
func MustParseCompression(s string) Compression {
	c, err := ParseCompression(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Compression) String() string {
	switch c.Mnemonic {
	case MnemonicSnappy:
		return "snappy"
	case MnemonicZstd:
		return fmt.Sprintf("zstd:%d", c.Level)
	default:
		return "invalid"
	}
}

// --------------------------------------------------------------------------
// Compression codecs
// --------------------------------------------------------------------------

// compressionCodec compresses a payload and reverses it. The level is ignored
// by codecs without levels.
type compressionCodec struct {
	name   string
	encode func(data []byte, level int) ([]byte, error)
	decode func(data []byte) ([]byte, error)
}

var compressionCodecs = map[Mnemonic]compressionCodec{
	MnemonicSnappy: {name: "snappy", encode: snappyEncode, decode: snappyDecode},
	MnemonicZstd:   {name: "zstd", encode: zstdEncode, decode: zstdDecode},
}

// --------------------------------------------------------------------------
// Snappy (framing format)
// --------------------------------------------------------------------------

var snappyWriters = sync.Pool{
	New: func() any { return snappy.NewBufferedWriter(nil) },
}

func snappyEncode(data []byte, _ int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(data)/2+64))

	w := snappyWriters.Get().(*snappy.Writer)
	defer snappyWriters.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, common.WrapError(common.RetCEncoding, err, "snappy compression failed")
	}
	if err := w.Close(); err != nil {
		return nil, common.WrapError(common.RetCEncoding, err, "snappy compression failed")
	}
	return buf.Bytes(), nil
}

func snappyDecode(data []byte) ([]byte, error) {
	out, err := io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, common.WrapError(common.RetCEncoding, err, "snappy decompression failed")
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Zstd
// --------------------------------------------------------------------------

// zstdEncoders holds one lazily built encoder per level. EncodeAll is safe
// for concurrent use, so a single encoder per level is shared by all callers.
var zstdEncoders [maxZstdLevel + 1]struct {
	once sync.Once
	enc  *zstd.Encoder
	err  error
}

func zstdEncoder(level int) (*zstd.Encoder, error) {
	if level < minZstdLevel || level > maxZstdLevel {
		return nil, common.Errorf(common.RetCConfig,
			"Zstd compression level must be between %d and %d, got: %d", minZstdLevel, maxZstdLevel, level)
	}
	slot := &zstdEncoders[level]
	slot.once.Do(func() {
		slot.enc, slot.err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	})
	return slot.enc, slot.err
}

var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil)
})

func zstdEncode(data []byte, level int) ([]byte, error) {
	enc, err := zstdEncoder(level)
	if err != nil {
		return nil, common.WrapError(common.RetCEncoding, err, "zstd encoder unavailable")
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2+64)), nil
}

func zstdDecode(data []byte) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, common.WrapError(common.RetCEncoding, err, "zstd decoder unavailable")
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, common.WrapError(common.RetCEncoding, err, "zstd decompression failed")
	}
	return out, nil
}
