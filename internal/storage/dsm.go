package storage

import (
	"bytes"

	"github.com/navsec/osnma/internal/authentication"
	"github.com/navsec/osnma/internal/log"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

const (
	maxDsmIDs    = 16
	maxDsmBlocks = 16

	// dsmTimeoutSubframes evicts a partial DSM that has made no
	// progress for this many subframes.
	dsmTimeoutSubframes = 16
)

// Dsm is a completed DSM message handed to the verifier.
type Dsm struct {
	ID   uint8
	Kind message.DsmKind
	Data []byte
}

type dsmBuffer struct {
	blocks     [maxDsmBlocks * message.DsmBlockBytes]byte
	blockValid [maxDsmBlocks]bool
	active     bool
	done       bool
	lastGst    galileo.Gst
}

// DsmCollector reassembles DSM messages from per-subframe HKROOT
// blocks. One buffer per DSM ID is kept; a buffer that sees no new
// block for a while is evicted.
type DsmCollector struct {
	buffers [maxDsmIDs]dsmBuffer
	record  func(authentication.Code)
}

// NewDsmCollector returns an empty collector. record is invoked with a
// telemetry code whenever a partial DSM is evicted; it may be nil.
func NewDsmCollector(record func(authentication.Code)) *DsmCollector {
	if record == nil {
		record = func(authentication.Code) {}
	}
	return &DsmCollector{record: record}
}

// Feed stores one DSM block received at subframe gst. When the block
// completes its DSM message, the reassembled message is returned. The
// returned data aliases internal storage and is valid until the next
// call for the same DSM ID.
func (c *DsmCollector) Feed(header message.DsmHeader, block []byte, gst galileo.Gst) (Dsm, bool) {
	c.evictStale(gst)
	if len(block) != message.DsmBlockBytes {
		return Dsm{}, false
	}
	id := header.DsmID()
	blockID := int(header.BlockID())
	buf := &c.buffers[id]
	if !buf.active {
		*buf = dsmBuffer{active: true, lastGst: gst}
	}
	if buf.done {
		// The message for this ID is already complete; a block with
		// different contents starts a fresh collection.
		off := blockID * message.DsmBlockBytes
		if buf.blockValid[blockID] && bytes.Equal(buf.blocks[off:off+message.DsmBlockBytes], block) {
			return Dsm{}, false
		}
		*buf = dsmBuffer{active: true, lastGst: gst}
	}
	off := blockID * message.DsmBlockBytes
	if buf.blockValid[blockID] {
		if !bytes.Equal(buf.blocks[off:off+message.DsmBlockBytes], block) {
			// Conflicting retransmission: the whole DSM is suspect.
			log.Warning("DSM %d block %d differs from stored copy, restarting", id, blockID)
			*buf = dsmBuffer{active: true, lastGst: gst}
		} else {
			buf.lastGst = gst
			return Dsm{}, false
		}
	}
	copy(buf.blocks[off:], block)
	buf.blockValid[blockID] = true
	buf.lastGst = gst

	n, ok := c.blockCount(header.Kind(), buf)
	if !ok {
		return Dsm{}, false
	}
	for i := 0; i < n; i++ {
		if !buf.blockValid[i] {
			return Dsm{}, false
		}
	}
	buf.done = true
	log.Info("completed DSM %d (%d blocks)", id, n)
	return Dsm{ID: id, Kind: header.Kind(), Data: buf.blocks[:n*message.DsmBlockBytes]}, true
}

// blockCount reads the total block count from the first block, once it
// is present.
func (c *DsmCollector) blockCount(kind message.DsmKind, buf *dsmBuffer) (int, bool) {
	if !buf.blockValid[0] {
		return 0, false
	}
	if kind == message.DsmPkr {
		return message.NewPkr(buf.blocks[:]).BlockCount()
	}
	return message.NewKroot(buf.blocks[:]).BlockCount()
}

func (c *DsmCollector) evictStale(gst galileo.Gst) {
	for id := range c.buffers {
		buf := &c.buffers[id]
		if !buf.active || buf.done {
			continue
		}
		if buf.lastGst.SubframesUntil(gst) > dsmTimeoutSubframes {
			log.Warning("evicting stale partial DSM %d", id)
			buf.active = false
			c.record(authentication.CodeDsmIncomplete)
		}
	}
}
