package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/navsec/osnma/internal/authentication"
	"github.com/navsec/osnma/internal/bitfield"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

func testChain() authentication.Chain {
	return authentication.Chain{
		Status:       authentication.ChainOperational,
		ID:           0,
		Hash:         message.HashSha256,
		Mac:          message.MacHmacSha256,
		KeySizeBytes: 16,
		TagSizeBits:  40,
		Maclt:        33,
		Alpha:        0x25d3964da3a2,
	}
}

func testKey(gst galileo.Gst) authentication.Key {
	material := make([]byte, 16)
	for i := range material {
		material[i] = byte(0x40 + i)
	}
	return authentication.KeyFromBytes(material, gst, testChain())
}

// inavWord builds a 16-byte INAV word of the given type with a
// deterministic payload.
func inavWord(wordType uint8, seed byte) []byte {
	word := make([]byte, message.InavWordBytes)
	for i := range word {
		word[i] = seed + byte(i)*3
	}
	bitfield.PutUint(word, 0, 6, uint64(wordType))
	return word
}

// feedCedWords loads word types 1 to 5 for svn at gst and returns the
// resulting 549-bit data block.
func feedCedWords(s *NavStore, svn galileo.Svn, gst galileo.Gst, seed byte) []byte {
	data := make([]byte, cedBytes)
	type span struct{ dst, src, n int }
	spans := []span{
		{0, 6, 120}, {120, 6, 120}, {240, 6, 122}, {362, 6, 120}, {482, 6, 67},
	}
	for i, sp := range spans {
		word := inavWord(uint8(i+1), seed+byte(i)*17)
		s.FeedInav(word, svn, gst, galileo.BandE1B)
		bitfield.FromBits(word, sp.src, sp.n).CopyTo(data, sp.dst)
	}
	return data
}

// feedTimingWords loads word types 6 and 10 for svn at gst and returns
// the resulting 141-bit data block.
func feedTimingWords(s *NavStore, svn galileo.Svn, gst galileo.Gst, seed byte) []byte {
	data := make([]byte, timingBytes)
	w6 := inavWord(6, seed)
	s.FeedInav(w6, svn, gst, galileo.BandE1B)
	bitfield.FromBits(w6, 6, 99).CopyTo(data, 0)
	w10 := inavWord(10, seed+1)
	s.FeedInav(w10, svn, gst, galileo.BandE1B)
	bitfield.FromBits(w10, 86, 42).CopyTo(data, 99)
	return data
}

// computeTag derives a 40-bit tag the way the transmitter does, per
// the ICD tag message layout.
func computeTag(key authentication.Key, tag0 bool, prnd uint8, prna galileo.Svn,
	gst galileo.Gst, ctr uint8, status message.NmaStatus, navdata bitfield.Slice) []byte {
	var buf [76]byte
	n := 0
	if !tag0 {
		buf[n] = prnd
		n++
	}
	buf[n] = uint8(prna)
	bitfield.PutUint(buf[n+1:n+5], 0, 12, uint64(gst.Wn()))
	bitfield.PutUint(buf[n+1:n+5], 12, 32, uint64(gst.Tow()))
	buf[n+5] = ctr
	n += 6
	bitfield.PutUint(buf[n:], 0, 2, uint64(status))
	navdata.CopyTo(buf[n:], 2)
	n += (2 + navdata.Len() + 7) / 8
	mac := hmac.New(sha256.New, key.Bytes())
	mac.Write(buf[:n])
	return mac.Sum(nil)[:5]
}

// buildMack assembles a 60-byte MACK message with the given tag0 and
// tag-info slots. Slots not provided carry COP = 0 so they are skipped.
type mackSlot struct {
	tag  []byte
	prnd uint8
	adkd uint8
	cop  uint8
}

func buildMack(tag0 []byte, tag0Cop uint8, slots map[int]mackSlot) []byte {
	data := make([]byte, message.MackMessageBytes)
	if tag0 != nil {
		bitfield.New(tag0).Range(0, 40).CopyTo(data, 0)
	}
	bitfield.PutUint(data, 52, 56, uint64(tag0Cop))
	for slot, s := range slots {
		off := 56 * slot
		if s.tag != nil {
			bitfield.New(s.tag).Range(0, 40).CopyTo(data, off)
		}
		bitfield.PutUint(data, off+40, off+48, uint64(s.prnd))
		bitfield.PutUint(data, off+48, off+52, uint64(s.adkd))
		bitfield.PutUint(data, off+52, off+56, uint64(s.cop))
	}
	return data
}

func TestProcessMackAuthenticatesCed(t *testing.T) {
	var codes []authentication.Code
	s := NewNavStore(12, 3, 40, func(c authentication.Code) { codes = append(codes, c) })
	svn := galileo.MustSvn(7)
	gstData := galileo.MustGst(1248, 36000)
	gstMack := gstData.AddSubframes(1)
	key := testKey(gstMack.AddSubframes(1))

	data := feedCedWords(s, svn, gstData, 0x10)
	if _, ok := s.CedAndStatus(svn); ok {
		t.Fatal("data authenticated before any tag")
	}

	navdata := bitfield.FromBits(data, 0, cedBits)
	tag0 := computeTag(key, true, 0, svn, gstMack, 1, message.NmaStatusOperational, navdata)
	mack := message.NewMack(buildMack(tag0, 15, nil), 128, 40)
	s.ProcessMack(mack, key, svn, gstMack, message.NmaStatusOperational)

	got, ok := s.CedAndStatus(svn)
	if !ok {
		t.Fatal("data not authenticated after a valid tag0")
	}
	if got.AuthBits != 40 {
		t.Errorf("AuthBits = %d, want 40", got.AuthBits)
	}
	if got.Gst != gstData {
		t.Errorf("Gst = %v, want %v", got.Gst, gstData)
	}
	if got.AuthGst != gstMack {
		t.Errorf("AuthGst = %v, want %v", got.AuthGst, gstMack)
	}
	if !bitfield.New(got.Data).Range(0, cedBits).Equal(navdata) {
		t.Error("returned data differs from stored data")
	}
	for _, c := range codes {
		if c == authentication.CodeTagMismatch {
			t.Error("unexpected tag-mismatch during valid processing")
		}
	}

	// Reprocessing the identical MACK must not double-count the tag.
	s.ProcessMack(mack, key, svn, gstMack, message.NmaStatusOperational)
	got, _ = s.CedAndStatus(svn)
	if got.AuthBits != 40 {
		t.Errorf("AuthBits after duplicate = %d, want 40", got.AuthBits)
	}
}

func TestProcessMackCrossAuthAndThreshold(t *testing.T) {
	// With an 80-bit threshold, one 40-bit tag is not enough and a
	// second distinct tag completes the authentication.
	s := NewNavStore(12, 3, 80, nil)
	svnD := galileo.MustSvn(7)
	prnaA := galileo.MustSvn(9)
	prnaB := galileo.MustSvn(11)
	gstData := galileo.MustGst(1248, 36000)
	gstMack := gstData.AddSubframes(1)
	key := testKey(gstMack.AddSubframes(1))

	data := feedCedWords(s, svnD, gstData, 0x33)
	navdata := bitfield.FromBits(data, 0, cedBits)

	tagA := computeTag(key, false, uint8(svnD), prnaA, gstMack, 2, message.NmaStatusOperational, navdata)
	mackA := buildMack(nil, 0, map[int]mackSlot{
		1: {tag: tagA, prnd: uint8(svnD), adkd: 0, cop: 15},
	})
	s.ProcessMack(message.NewMack(mackA, 128, 40), key, prnaA, gstMack, message.NmaStatusOperational)
	if _, ok := s.CedAndStatus(svnD); ok {
		t.Fatal("40 bits crossed an 80-bit threshold")
	}

	tagB := computeTag(key, false, uint8(svnD), prnaB, gstMack, 2, message.NmaStatusOperational, navdata)
	mackB := buildMack(nil, 0, map[int]mackSlot{
		1: {tag: tagB, prnd: uint8(svnD), adkd: 0, cop: 15},
	})
	s.ProcessMack(message.NewMack(mackB, 128, 40), key, prnaB, gstMack, message.NmaStatusOperational)
	got, ok := s.CedAndStatus(svnD)
	if !ok {
		t.Fatal("80 bits from two tags did not authenticate")
	}
	if got.AuthBits != 80 {
		t.Errorf("AuthBits = %d, want 80", got.AuthBits)
	}
}

func TestProcessMackTiming(t *testing.T) {
	s := NewNavStore(12, 3, 40, nil)
	svn := galileo.MustSvn(4)
	gstData := galileo.MustGst(1248, 36000)
	gstMack := gstData.AddSubframes(1)
	key := testKey(gstMack.AddSubframes(1))

	data := feedTimingWords(s, svn, gstData, 0x55)
	navdata := bitfield.FromBits(data, 0, timingBits)
	tag := computeTag(key, false, uint8(svn), svn, gstMack, 2, message.NmaStatusOperational, navdata)
	mack := buildMack(nil, 0, map[int]mackSlot{
		1: {tag: tag, prnd: uint8(svn), adkd: 4, cop: 15},
	})
	s.ProcessMack(message.NewMack(mack, 128, 40), key, svn, gstMack, message.NmaStatusOperational)
	got, ok := s.TimingParameters(svn)
	if !ok {
		t.Fatal("timing data not authenticated")
	}
	if got.Bits != timingBits {
		t.Errorf("Bits = %d", got.Bits)
	}
}

func TestProcessMackSlowMac(t *testing.T) {
	s := NewNavStore(12, 13, 40, nil)
	svn := galileo.MustSvn(2)
	gstData := galileo.MustGst(1248, 36000)
	gstMack := gstData.AddSubframes(1)
	// Slow MAC keys disclose eleven subframes after the tag.
	key := testKey(gstMack.AddSubframes(11))

	data := feedCedWords(s, svn, gstData, 0x77)
	navdata := bitfield.FromBits(data, 0, cedBits)
	tag := computeTag(key, false, uint8(svn), svn, gstMack, 2, message.NmaStatusOperational, navdata)
	mack := buildMack(nil, 0, map[int]mackSlot{
		1: {tag: tag, prnd: uint8(svn), adkd: 12, cop: 15},
	})
	s.ProcessMackSlow(message.NewMack(mack, 128, 40), key, svn, gstMack, message.NmaStatusOperational)
	if _, ok := s.CedAndStatus(svn); !ok {
		t.Fatal("Slow MAC tag did not authenticate")
	}
}

func TestMissingNavDataCounted(t *testing.T) {
	var missing int
	s := NewNavStore(12, 3, 40, func(c authentication.Code) {
		if c == authentication.CodeMissingNavData {
			missing++
		}
	})
	svn := galileo.MustSvn(7)
	gstMack := galileo.MustGst(1248, 36030)
	key := testKey(gstMack.AddSubframes(1))
	mack := buildMack(make([]byte, 5), 15, nil)
	s.ProcessMack(message.NewMack(mack, 128, 40), key, svn, gstMack, message.NmaStatusOperational)
	if missing == 0 {
		t.Error("missing navigation data not counted")
	}
}

func TestWordChangeResetsAuthentication(t *testing.T) {
	s := NewNavStore(12, 3, 40, nil)
	svn := galileo.MustSvn(7)
	gstData := galileo.MustGst(1248, 36000)
	gstMack := gstData.AddSubframes(1)
	key := testKey(gstMack.AddSubframes(1))

	data := feedCedWords(s, svn, gstData, 0x10)
	navdata := bitfield.FromBits(data, 0, cedBits)
	tag0 := computeTag(key, true, 0, svn, gstMack, 1, message.NmaStatusOperational, navdata)
	mack := message.NewMack(buildMack(tag0, 15, nil), 128, 40)
	s.ProcessMack(mack, key, svn, gstMack, message.NmaStatusOperational)
	if _, ok := s.CedAndStatus(svn); !ok {
		t.Fatal("data not authenticated")
	}

	// A word type 1 with different contents voids the accumulated
	// authentication for the changed block.
	s.FeedInav(inavWord(1, 0x99), svn, gstData, galileo.BandE1B)
	if _, ok := s.CedAndStatus(svn); ok {
		t.Error("authentication survived a data change")
	}
}

func TestEvictionOnSatelliteOverflow(t *testing.T) {
	var evicted int
	s := NewNavStore(12, 3, 40, func(c authentication.Code) {
		if c == authentication.CodeStorageEvicted {
			evicted++
		}
	})
	gst := galileo.MustGst(1248, 36000)
	// A 13th satellite in a 12-slot store evicts the stalest entry.
	for n := 1; n <= 13; n++ {
		s.FeedInav(inavWord(1, byte(n)), galileo.MustSvn(n), gst, galileo.BandE1B)
	}
	if evicted == 0 {
		t.Error("overflow did not record an eviction")
	}
}
