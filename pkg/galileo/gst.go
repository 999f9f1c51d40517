// Package galileo contains the small domain types shared by the OSNMA
// engine and its collaborators: Galileo System Time, satellite numbers,
// signal bands and authentication data kinds.
package galileo

import "fmt"

const (
	// SecondsPerWeek is the number of seconds in a Galileo week.
	SecondsPerWeek = 7 * 24 * 3600
	// SecondsPerSubframe is the duration of an INAV subframe.
	SecondsPerSubframe = 30
)

// Gst is a Galileo System Time instant, stored as a week number and a
// time of week in seconds. The zero value is the Galileo epoch.
type Gst struct {
	wn  uint16
	tow uint32
}

// NewGst builds a Gst from a week number and a time of week.
// The time of week must be below SecondsPerWeek.
func NewGst(wn uint16, tow uint32) (Gst, error) {
	if tow >= SecondsPerWeek {
		return Gst{}, fmt.Errorf("time of week %d out of range", tow)
	}
	return Gst{wn: wn, tow: tow}, nil
}

// MustGst is like NewGst but panics on an out-of-range time of week.
// It is intended for constants and tests.
func MustGst(wn uint16, tow uint32) Gst {
	g, err := NewGst(wn, tow)
	if err != nil {
		panic(err)
	}
	return g
}

// Wn returns the week number.
func (g Gst) Wn() uint16 { return g.wn }

// Tow returns the time of week in seconds.
func (g Gst) Tow() uint32 { return g.tow }

// AddSeconds returns the Gst shifted by the given number of seconds,
// handling week rollover in either direction.
func (g Gst) AddSeconds(seconds int) Gst {
	weeks := seconds / SecondsPerWeek
	seconds -= weeks * SecondsPerWeek
	tow := int(g.tow) + seconds
	wn := int(g.wn) + weeks
	if tow < 0 {
		wn--
		tow += SecondsPerWeek
	} else if tow >= SecondsPerWeek {
		wn++
		tow -= SecondsPerWeek
	}
	return Gst{wn: uint16(wn), tow: uint32(tow)}
}

// AddSubframes returns the Gst shifted by the given number of 30-second
// subframes.
func (g Gst) AddSubframes(subframes int) Gst {
	return g.AddSeconds(subframes * SecondsPerSubframe)
}

// SubframeStart returns the Gst at the start of the subframe containing g.
func (g Gst) SubframeStart() Gst {
	return Gst{wn: g.wn, tow: g.tow / SecondsPerSubframe * SecondsPerSubframe}
}

// IsSubframeStart reports whether g falls exactly on a subframe boundary.
func (g Gst) IsSubframeStart() bool {
	return g.tow%SecondsPerSubframe == 0
}

// SubframesUntil returns the number of subframes from g to other.
// The result is negative if other is earlier than g.
func (g Gst) SubframesUntil(other Gst) int {
	weeks := int(other.wn) - int(g.wn)
	return weeks*(SecondsPerWeek/SecondsPerSubframe) +
		(int(other.tow)-int(g.tow))/SecondsPerSubframe
}

// Before reports whether g is strictly earlier than other.
func (g Gst) Before(other Gst) bool {
	return g.wn < other.wn || (g.wn == other.wn && g.tow < other.tow)
}

// After reports whether g is strictly later than other.
func (g Gst) After(other Gst) bool { return other.Before(g) }

func (g Gst) String() string {
	return fmt.Sprintf("WN %d TOW %d", g.wn, g.tow)
}
