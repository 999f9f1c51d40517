// Package storage holds the bounded buffers of the OSNMA engine: the
// per-satellite subframe collector, the DSM reassembler, the MACK
// history and the navigation data store with its tag accumulator. All
// buffers are allocated at construction and never grow.
package storage

import (
	"github.com/navsec/osnma/internal/log"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

// Subframe collects the OSNMA data messages of one subframe for every
// satellite in parallel and recomposes the HKROOT and MACK messages.
type Subframe struct {
	hkroot   [galileo.NumSvns][message.HkrootMessageBytes]byte
	mack     [galileo.NumSvns][message.MackMessageBytes]byte
	numValid [galileo.NumSvns]uint8
	wn       uint16
	subframe uint32
}

// NewSubframe returns an empty subframe collector.
func NewSubframe() *Subframe { return &Subframe{} }

// Feed adds a 5-byte OSNMA data message received from svn at gst. When
// the message completes the subframe for that satellite, the HKROOT and
// MACK messages and the subframe start time are returned. Data must be
// fed in chronological order; a page belonging to a new subframe
// discards the collection state of the old one.
func (c *Subframe) Feed(osnma []byte, svn galileo.Svn, gst galileo.Gst) ([]byte, []byte, galileo.Gst, bool) {
	if len(osnma) != message.OsnmaDataBytes {
		return nil, nil, galileo.Gst{}, false
	}
	wordNum := (gst.Tow() / 2) % message.WordsPerSubframe
	subframe := gst.Tow() / galileo.SecondsPerSubframe
	if gst.Wn() != c.wn || subframe != c.subframe {
		log.Debug("starting collection of new subframe (%v)", gst)
		c.wn = gst.Wn()
		c.subframe = subframe
		for i := range c.numValid {
			c.numValid[i] = 0
		}
	}
	idx := int(svn) - 1
	if wordNum != uint32(c.numValid[idx]) {
		// A gap in the page sequence leaves this satellite's subframe
		// incomplete; drop the remainder.
		return nil, nil, galileo.Gst{}, false
	}
	valid := int(c.numValid[idx])
	copy(c.hkroot[idx][valid*message.HkrootSectionBytes:], osnma[:message.HkrootSectionBytes])
	copy(c.mack[idx][valid*message.MackSectionBytes:], osnma[message.HkrootSectionBytes:])
	c.numValid[idx]++
	if c.numValid[idx] < message.WordsPerSubframe {
		return nil, nil, galileo.Gst{}, false
	}
	start := galileo.MustGst(c.wn, c.subframe*galileo.SecondsPerSubframe)
	return c.hkroot[idx][:], c.mack[idx][:], start, true
}
