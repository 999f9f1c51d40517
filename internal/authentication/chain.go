// Package authentication implements the cryptographic core of OSNMA:
// TESLA chains and keys, DSM-KROOT and DSM-PKR verification, the public
// key Merkle tree, MACSEQ checks and navigation data tag checks.
//
// Functions in this package are pure with respect to engine state: they
// verify and return results, and the engine decides what to store.
package authentication

import (
	"fmt"

	"github.com/navsec/osnma/internal/maclt"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

// ChainStatus is the NMA status a TESLA chain was announced under.
// "Don't use" and reserved are not valid statuses for a chain.
type ChainStatus uint8

const (
	ChainTest        ChainStatus = 1
	ChainOperational ChainStatus = 2
)

// Chain holds the parameters of a TESLA chain, extracted from a
// DSM-KROOT message.
type Chain struct {
	Status       ChainStatus
	ID           uint8
	Hash         message.HashFunc
	Mac          message.MacFunc
	KeySizeBytes int
	TagSizeBits  int
	Maclt        uint8
	Alpha        uint64
}

// ChainFromKroot extracts the chain parameters from a DSM-KROOT message
// and the NMA header it was received under.
func ChainFromKroot(header message.NmaHeader, kroot message.Kroot) (Chain, error) {
	var status ChainStatus
	switch header.Status() {
	case message.NmaStatusTest:
		status = ChainTest
	case message.NmaStatusOperational:
		status = ChainOperational
	case message.NmaStatusDontUse:
		return Chain{}, newError(CodeMalformedBits, "NMA status is don't use")
	default:
		return Chain{}, newError(CodeMalformedBits, "reserved NMA status")
	}
	hf, ok := kroot.HashFunc()
	if !ok {
		return Chain{}, newError(CodeUnsupportedHash, "reserved hash function")
	}
	mf, ok := kroot.MacFunc()
	if !ok {
		return Chain{}, newError(CodeUnsupportedMac, "reserved MAC function")
	}
	keyBits, ok := kroot.KeySizeBits()
	if !ok {
		return Chain{}, newError(CodeMalformedBits, "reserved key size")
	}
	tagBits, ok := kroot.TagSizeBits()
	if !ok {
		return Chain{}, newError(CodeMalformedBits, "reserved tag size")
	}
	return Chain{
		Status:       status,
		ID:           header.ChainID(),
		Hash:         hf,
		Mac:          mf,
		KeySizeBytes: keyBits / 8,
		TagSizeBits:  tagBits,
		Maclt:        kroot.MacLookupTable(),
		Alpha:        kroot.Alpha(),
	}, nil
}

// KeySizeBits returns the TESLA key size in bits.
func (c Chain) KeySizeBits() int { return c.KeySizeBytes * 8 }

// ValidateAdkd checks the ADKD and PRND fields of the numTag-th tag of
// a MACK message against the MAC look-up table entry for this chain.
// prna is the satellite that transmitted the MACK message and gstTag
// the subframe start time of its transmission.
func (c Chain) ValidateAdkd(numTag int, tag message.TagInfo, prna galileo.Svn, gstTag galileo.Gst) error {
	seq := int(gstTag.Tow()/galileo.SecondsPerSubframe) % 2
	slot, err := maclt.Lookup(c.Maclt, seq, numTag)
	if err != nil {
		return errorf(CodeMalformedBits, "MAC look-up: %v", err)
	}
	if slot.Flex {
		// Any announced tag is acceptable in a flexible slot.
		return nil
	}
	if galileo.Adkd(tag.Adkd()) != slot.Adkd {
		return errorf(CodeMalformedBits, "tag %d ADKD %d does not match look-up table", numTag, tag.Adkd())
	}
	prnd := tag.Prnd()
	if prnd < 1 || prnd > galileo.NumSvns {
		return errorf(CodeMalformedBits, "tag %d PRND %d not a Galileo SVID", numTag, prnd)
	}
	if !slot.CrossAuth && galileo.Svn(prnd) != prna {
		return errorf(CodeMalformedBits, "tag %d PRND %d in self-authenticating slot of %s", numTag, prnd, prna)
	}
	return nil
}

func (c Chain) String() string {
	return fmt.Sprintf("chain %d (MACLT %d, key %d bits, tag %d bits)",
		c.ID, c.Maclt, c.KeySizeBits(), c.TagSizeBits)
}
