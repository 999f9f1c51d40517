package authentication

import (
	"bytes"
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"hash"

	"github.com/dchest/cmac"
	"golang.org/x/crypto/sha3"

	"github.com/navsec/osnma/internal/bitfield"
	"github.com/navsec/osnma/internal/maclt"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

// maxKeyBytes is the largest TESLA key size defined by the ICD.
const maxKeyBytes = 32

// maxDerivations bounds the hash walk when validating a key against an
// older anchor. 3000 derivations correspond to roughly 25 hours.
const maxDerivations = 3000

// Key is a TESLA key together with the parameters of its chain and the
// start time of the subframe that disclosed it.
//
// A Key is "authenticated" only by provenance: keys returned by
// VerifyKroot and by Key.ValidateKey have been traced to an ECDSA
// public key, keys built with KeyFromBits have not. The engine keeps
// the two apart.
type Key struct {
	data  [maxKeyBytes]byte
	chain Chain
	gst   galileo.Gst
}

// KeyFromBits copies a disclosed key out of a MACK message. gst must be
// the subframe start time of the disclosing subframe.
func KeyFromBits(bits bitfield.Slice, gst galileo.Gst, chain Chain) Key {
	if !gst.IsSubframeStart() {
		panic("authentication: key GST not at a subframe boundary")
	}
	var k Key
	bits.CopyTo(k.data[:], 0)
	k.chain = chain
	k.gst = gst
	return k
}

// KeyFromBytes builds a key from raw bytes, for instance the KROOT
// field of a DSM-KROOT message.
func KeyFromBytes(b []byte, gst galileo.Gst, chain Chain) Key {
	if !gst.IsSubframeStart() {
		panic("authentication: key GST not at a subframe boundary")
	}
	var k Key
	copy(k.data[:chain.KeySizeBytes], b)
	k.chain = chain
	k.gst = gst
	return k
}

// Chain returns the parameters of the chain the key belongs to.
func (k Key) Chain() Chain { return k.chain }

// Gst returns the subframe start time the key was disclosed at.
func (k Key) Gst() galileo.Gst { return k.gst }

// Bytes returns the key material.
func (k Key) Bytes() []byte { return k.data[:k.chain.KeySizeBytes] }

// storeGst packs a GST as WN(12 bits) ‖ TOW(20 bits) into 4 bytes.
func storeGst(buf []byte, gst galileo.Gst) {
	bitfield.PutUint(buf, 0, 12, uint64(gst.Wn()))
	bitfield.PutUint(buf, 12, 32, uint64(gst.Tow()))
}

func (k Key) hashDigest() hash.Hash {
	if k.chain.Hash == message.HashSha3_256 {
		return sha3.New256()
	}
	return sha256.New()
}

func (k Key) macDigest() (hash.Hash, error) {
	key := k.data[:k.chain.KeySizeBytes]
	switch k.chain.Mac {
	case message.MacCmacAes:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, errorf(CodeUnsupportedMac, "CMAC-AES with %d-byte key", len(key))
		}
		mac, err := cmac.New(block)
		if err != nil {
			return nil, errorf(CodeUnsupportedMac, "CMAC: %v", err)
		}
		return mac, nil
	default:
		return hmac.New(sha256.New, key), nil
	}
}

// OneWayFunction returns the chain key of the previous subframe:
// trunc( H(key ‖ GST of previous subframe ‖ alpha) ).
func (k Key) OneWayFunction() Key {
	size := k.chain.KeySizeBytes
	previous := k.gst.AddSeconds(-galileo.SecondsPerSubframe)
	h := k.hashDigest()
	h.Write(k.data[:size])
	var gstBuf [4]byte
	storeGst(gstBuf[:], previous)
	h.Write(gstBuf[:])
	var alpha [8]byte
	bitfield.PutUint(alpha[:], 16, 64, k.chain.Alpha)
	h.Write(alpha[2:])
	out := h.Sum(nil)
	var prev Key
	copy(prev.data[:size], out[:size])
	prev.chain = k.chain
	prev.gst = previous
	return prev
}

// Derive applies the one-way function n times.
func (k Key) Derive(n int) Key {
	for ; n > 0; n-- {
		k = k.OneWayFunction()
	}
	return k
}

// ValidateKey walks other back through the one-way function until it
// reaches the subframe of k and compares the result. k must be an
// authenticated key; on success the now-authenticated other is
// returned.
func (k Key) ValidateKey(other Key) (Key, error) {
	if k.chain != other.chain {
		return Key{}, newError(CodeChainBroken, "keys belong to different chains")
	}
	derivations := k.gst.SubframesUntil(other.gst)
	if derivations <= 0 {
		return Key{}, newError(CodeChainBroken, "key is not later than the anchor")
	}
	if derivations > maxDerivations {
		return Key{}, errorf(CodeChainBroken, "%d derivations exceed the walk bound", derivations)
	}
	derived := other.Derive(derivations)
	size := k.chain.KeySizeBytes
	if !bytes.Equal(derived.data[:size], k.data[:size]) {
		return Key{}, newError(CodeChainBroken, "hash walk did not reach the anchor")
	}
	return other, nil
}

// tagMessage writes the authenticated message for a tag check:
// [PRN_D ‖] PRN_A ‖ GST_sf ‖ CTR ‖ NMAS ‖ navdata, zero-padded to a
// whole byte.
func tagMessage(mac hash.Hash, prnd *uint8, prna galileo.Svn, gst galileo.Gst,
	ctr uint8, status message.NmaStatus, navdata bitfield.Slice) {
	// Large enough for the fixed header plus the 549-bit ADKD=0 data.
	var buf [76]byte
	n := 0
	if prnd != nil {
		buf[n] = *prnd
		n++
	}
	buf[n] = uint8(prna)
	storeGst(buf[n+1:n+5], gst)
	buf[n+5] = ctr
	n += 6
	bitfield.PutUint(buf[n:], 0, 2, uint64(status))
	navdata.CopyTo(buf[n:], 2)
	n += (2 + navdata.Len() + 7) / 8
	mac.Write(buf[:n])
}

func (k Key) checkTag(mac hash.Hash, tag bitfield.Slice) bool {
	out := mac.Sum(nil)
	return bitfield.New(out).Range(0, tag.Len()).Equal(tag)
}

// ValidateTag0 checks the tag0 of a MACK message against navigation
// data of the satellite that transmitted it. The key must be the TESLA
// key disclosed in the subframe after the tag.
func (k Key) ValidateTag0(tag bitfield.Slice, tagGst galileo.Gst, prna galileo.Svn,
	status message.NmaStatus, navdata bitfield.Slice) bool {
	mac, err := k.macDigest()
	if err != nil {
		return false
	}
	tagMessage(mac, nil, prna, tagGst, 1, status, navdata)
	return k.checkTag(mac, tag)
}

// ValidateTag checks a non-tag0 MACK tag. ctr is the 1-based tag
// position in the MACK message; prnd is the satellite whose data is
// authenticated and prna the satellite that transmitted the tag.
func (k Key) ValidateTag(tag bitfield.Slice, tagGst galileo.Gst, prnd uint8, prna galileo.Svn,
	ctr uint8, status message.NmaStatus, navdata bitfield.Slice) bool {
	mac, err := k.macDigest()
	if err != nil {
		return false
	}
	tagMessage(mac, &prnd, prna, tagGst, ctr, status, navdata)
	return k.checkTag(mac, tag)
}

// ValidateMacSeq checks the MACSEQ field of a MACK message: a MAC over
// PRN_A, GST_sf and the tag-info sections of the flexible slots, computed with
// the key of the following subframe. A failure invalidates every tag
// in the message.
func (k Key) ValidateMacSeq(mack message.Mack, prna galileo.Svn, gstMack galileo.Gst) error {
	mac, err := k.macDigest()
	if err != nil {
		return err
	}
	var buf [5]byte
	buf[0] = uint8(prna)
	storeGst(buf[1:5], gstMack)
	mac.Write(buf[:])
	seq := int(gstMack.Tow()/galileo.SecondsPerSubframe) % 2
	indices, err := maclt.FlexIndices(k.chain.Maclt, seq)
	if err != nil {
		return errorf(CodeMalformedBits, "MAC look-up: %v", err)
	}
	for _, idx := range indices {
		if idx >= mack.NumTags() {
			return newError(CodeMalformedBits, "flexible slot beyond MACK tag count")
		}
		mac.Write(mack.TagInfo(idx).Info().Bytes())
	}
	out := mac.Sum(nil)
	if uint16(bitfield.New(out).Uint(0, 12)) != mack.MacSeq() {
		return newError(CodeMacseqInvalid, "")
	}
	return nil
}

// ValidateMack runs the MACSEQ check and the ADKD look-up table check
// on every tag of a MACK message. On success the message's tags may be
// used for navigation data authentication.
func (k Key) ValidateMack(mack message.Mack, prna galileo.Svn, gstMack galileo.Gst) error {
	if err := k.ValidateMacSeq(mack, prna, gstMack); err != nil {
		return err
	}
	for j := 1; j < mack.NumTags(); j++ {
		if err := k.chain.ValidateAdkd(j, mack.TagInfo(j), prna, gstMack); err != nil {
			return err
		}
	}
	return nil
}
