package message

import (
	"github.com/navsec/osnma/internal/bitfield"
)

// InavWord gives typed access to the data content of an INAV word: the
// 128 bits formed by the data fields of the even and odd page parts,
// after stripping the SSP, SAR, CRC and tail fields.
type InavWord struct {
	bits bitfield.Slice
}

// NewInavWord wraps the 16-byte data content of an INAV word.
func NewInavWord(data []byte) InavWord {
	return InavWord{bits: bitfield.New(data)}
}

// Type returns the word type (0 to 63; the ICD defines 0 to 10, 16, 17,
// 63 among others).
func (w InavWord) Type() uint8 { return uint8(w.bits.Uint(0, 6)) }

// Bits returns the raw word bits.
func (w InavWord) Bits() bitfield.Slice { return w.bits }

// IodNav returns the issue-of-data for ephemeris words (types 1 to 4).
// The second value is false for other word types.
func (w InavWord) IodNav() (uint16, bool) {
	t := w.Type()
	if t < 1 || t > 4 {
		return 0, false
	}
	return uint16(w.bits.Uint(6, 16)), true
}

// ClockCorrection returns the satellite clock model of a word type 4:
// reference time t0c in seconds and the af0 (s), af1 (s/s) and af2
// (s/s²) coefficients as raw two's-complement field values.
func (w InavWord) ClockCorrection() (t0c uint32, af0, af1, af2 int64, ok bool) {
	if w.Type() != 4 {
		return 0, 0, 0, 0, false
	}
	t0c = uint32(w.bits.Uint(54, 68)) * 60
	af0 = signExtend(w.bits.Uint(68, 99), 31)
	af1 = signExtend(w.bits.Uint(99, 120), 21)
	af2 = signExtend(w.bits.Uint(120, 126), 6)
	return t0c, af0, af1, af2, true
}

// Gst returns the transmission time carried by a word type 5 (WN and
// TOW fields). The second value is false for other word types.
func (w InavWord) Gst() (wn uint16, tow uint32, ok bool) {
	if w.Type() != 5 {
		return 0, 0, false
	}
	return uint16(w.bits.Uint(73, 85)), uint32(w.bits.Uint(85, 105)), true
}

// GstUtc returns the GST-UTC conversion parameters of a word type 6:
// the A0 (s) and A1 (s/s) raw coefficients, the leap second count and
// the reference time of week t0t. The second value is false for other
// word types.
func (w InavWord) GstUtc() (a0, a1 int64, leapSeconds int8, t0t uint32, ok bool) {
	if w.Type() != 6 {
		return 0, 0, 0, 0, false
	}
	a0 = signExtend(w.bits.Uint(6, 38), 32)
	a1 = signExtend(w.bits.Uint(38, 62), 24)
	leapSeconds = int8(signExtend(w.bits.Uint(62, 70), 8))
	t0t = uint32(w.bits.Uint(70, 78)) * 3600
	return a0, a1, leapSeconds, t0t, true
}

func signExtend(v uint64, bits int) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}
