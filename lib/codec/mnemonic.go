package codec

import (
	"strings"
)

// --------------------------------------------------------------------------
// Mnemonics
// --------------------------------------------------------------------------

// Mnemonic is the one-byte wire tag of a codec. Representation and compression
// codecs share a single tag space; a byte is never assigned twice.
type Mnemonic byte

// Stable wire tags. Never reassign these, they are persisted with every record.
const (
	MnemonicUTF8  Mnemonic = 'U' // native string
	MnemonicBytes Mnemonic = 'B' // raw byte slice
	MnemonicJSON  Mnemonic = 'J' // structured data (encoding/json)
	MnemonicGob   Mnemonic = 'G' // arbitrary object graph (encoding/gob)

	MnemonicSnappy Mnemonic = 's' // snappy framing format
	MnemonicZstd   Mnemonic = 'z' // zstd frame
)

func (m Mnemonic) String() string {
	if c, ok := representationCodecs[m]; ok {
		return c.name
	}
	if c, ok := compressionCodecs[m]; ok {
		return c.name
	}
	return "unknown(" + string(rune(m)) + ")"
}

// --------------------------------------------------------------------------
// Chain
// --------------------------------------------------------------------------

// Chain is the ordered list of codecs applied to a value. The first element is
// the representation codec, every following element a compression stage in the
// order it was applied.
type Chain []Mnemonic

// ChainFromBytes converts the persisted form of a chain back into a Chain.
// The returned chain does not share memory with b.
func ChainFromBytes(b []byte) Chain {
	c := make(Chain, len(b))
	for i, m := range b {
		c[i] = Mnemonic(m)
	}
	return c
}

// Bytes returns the persisted form of the chain.
func (c Chain) Bytes() []byte {
	b := make([]byte, len(c))
	for i, m := range c {
		b[i] = byte(m)
	}
	return b
}

// Representation returns the representation codec of the chain, or 0 for an empty chain.
func (c Chain) Representation() Mnemonic {
	if len(c) == 0 {
		return 0
	}
	return c[0]
}

// IsCompressed reports whether at least one compression stage was applied.
func (c Chain) IsCompressed() bool {
	return len(c) > 1
}

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, m := range c {
		parts[i] = m.String()
	}
	return strings.Join(parts, "+")
}
