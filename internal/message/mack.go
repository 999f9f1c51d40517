package message

import (
	"github.com/navsec/osnma/internal/bitfield"
)

// Mack gives access to the fields of a 60-byte MACK message. The tag
// and key boundaries depend on the tag and key sizes of the TESLA chain
// in force, so they are captured at construction.
type Mack struct {
	bits    bitfield.Slice
	keyBits int
	tagBits int
}

// NewMack wraps a MACK message. keyBits and tagBits are the key and tag
// sizes of the chain in force.
func NewMack(data []byte, keyBits, tagBits int) Mack {
	return Mack{bits: bitfield.New(data), keyBits: keyBits, tagBits: tagBits}
}

// KeySizeBits returns the key size the message was constructed with.
func (m Mack) KeySizeBits() int { return m.keyBits }

// TagSizeBits returns the tag size the message was constructed with.
func (m Mack) TagSizeBits() int { return m.tagBits }

// Tag0 returns the tag0 field of the MACK header.
func (m Mack) Tag0() bitfield.Slice { return m.bits.Range(0, m.tagBits) }

// MacSeq returns the 12-bit MACSEQ field.
func (m Mack) MacSeq() uint16 {
	return uint16(m.bits.Uint(m.tagBits, m.tagBits+12))
}

// Cop returns the COP field of the MACK header.
func (m Mack) Cop() uint8 {
	off := m.tagBits + 12
	return uint8(m.bits.Uint(off, off+4))
}

// NumTags returns the number of tags in the message, tag0 included.
func (m Mack) NumTags() int {
	return (8*MackMessageBytes - m.keyBits) / (m.tagBits + 16)
}

// Key returns the TESLA key disclosed in the message.
func (m Mack) Key() bitfield.Slice {
	start := (m.tagBits + 16) * m.NumTags()
	return m.bits.Range(start, start+m.keyBits)
}

// TagInfo returns the n-th tag and its info section. Valid n range from
// 1 to NumTags()-1; tag0 has no info section and is read with Tag0.
func (m Mack) TagInfo(n int) TagInfo {
	if n < 1 || n >= m.NumTags() {
		panic("message: tag index out of range")
	}
	size := m.tagBits + 16
	return TagInfo{bits: m.bits.Range(size*n, size*(n+1))}
}

// TagInfo is one tag together with its 16-bit info section.
type TagInfo struct {
	bits bitfield.Slice
}

// Tag returns the tag bits.
func (t TagInfo) Tag() bitfield.Slice {
	return t.bits.Range(0, t.bits.Len()-16)
}

// Info returns the 16-bit tag-info section.
func (t TagInfo) Info() bitfield.Slice {
	return t.bits.Range(t.bits.Len()-16, t.bits.Len())
}

// PrndConstellation is the PRND value that marks constellation-related
// data rather than a satellite.
const PrndConstellation = 255

// Prnd returns the raw PRND field. Values 1 to 36 name a satellite,
// PrndConstellation names Galileo constellation data, anything else is
// reserved.
func (t TagInfo) Prnd() uint8 {
	n := t.bits.Len()
	return uint8(t.bits.Uint(n-16, n-8))
}

// Adkd returns the raw ADKD field.
func (t TagInfo) Adkd() uint8 {
	n := t.bits.Len()
	return uint8(t.bits.Uint(n-8, n-4))
}

// Cop returns the COP field of the info section.
func (t TagInfo) Cop() uint8 {
	n := t.bits.Len()
	return uint8(t.bits.Uint(n-4, n))
}
