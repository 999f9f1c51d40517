package storage

import (
	"github.com/navsec/osnma/internal/authentication"
	"github.com/navsec/osnma/internal/bitfield"
	"github.com/navsec/osnma/internal/log"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

const (
	cedBytes = 69
	cedWords = 5
	cedBits  = 549

	timingBytes = 18
	timingWords = 2
	timingBits  = 141

	// maxContributions bounds the per-item tag de-duplication list.
	// The largest defined tag is 40 bits, so even the historical
	// 80-bit threshold needs far fewer distinct tags than this.
	maxContributions = 12
)

// tagRef identifies one counted tag contribution: the authenticating
// satellite, the subframe of the tag and its slot in the MACK message.
type tagRef struct {
	prna galileo.Svn
	wn   uint16
	tow  uint32
	slot uint8
}

type navItem struct {
	data     []byte
	age      []uint8
	svn      galileo.Svn
	used     bool
	authBits uint16
	authGst  galileo.Gst
	contribs [maxContributions]tagRef
	numRefs  int
}

func (it *navItem) reset() {
	it.svn = 0
	it.used = false
	it.authBits = 0
	it.numRefs = 0
	for i := range it.age {
		it.age[i] = 0xff
	}
}

func (it *navItem) maxAge() uint8 {
	var m uint8
	for _, a := range it.age {
		if a > m {
			m = a
		}
	}
	return m
}

func (it *navItem) bits(n int) bitfield.Slice {
	return bitfield.FromBits(it.data, 0, n)
}

// copyWord stores word bits into the item. A change in the stored bits
// voids any authentication accumulated so far: tags that matched the
// old bits say nothing about the new ones.
func (it *navItem) copyWord(destStart, destEnd int, src bitfield.Slice, idx int) {
	it.age[idx] = 0
	if !bitfield.FromBits(it.data, destStart, destEnd-destStart).Equal(src) {
		src.CopyTo(it.data, destStart)
		it.authBits = 0
		it.numRefs = 0
	}
}

// addContribution records a tag contribution if it has not been counted
// before. It returns false for duplicates.
func (it *navItem) addContribution(ref tagRef, tagBits int) bool {
	for i := 0; i < it.numRefs; i++ {
		if it.contribs[i] == ref {
			return false
		}
	}
	if it.numRefs == len(it.contribs) {
		log.Warning("tag contribution list full for %v", it.svn)
		return false
	}
	it.contribs[it.numRefs] = ref
	it.numRefs++
	if it.authBits <= 0xffff-uint16(tagBits) {
		it.authBits += uint16(tagBits)
	}
	return true
}

// NavData is a piece of navigation data returned by a query.
type NavData struct {
	// Data holds the navigation bits, most significant bit first,
	// zero-padded in the last byte.
	Data []byte
	// Bits is the number of meaningful bits in Data.
	Bits int
	// AuthBits is the total tag length accumulated over this data.
	AuthBits uint16
	// Gst is the start of the subframe the data was transmitted in.
	Gst galileo.Gst
	// AuthGst is the subframe of the latest tag that contributed to
	// crossing the authentication threshold.
	AuthGst galileo.Gst
}

// NavStore classifies navigation data per satellite and subframe,
// verifies MACK tags against it and accumulates authentication bits.
type NavStore struct {
	ced          []navItem
	timing       []navItem
	gsts         []galileo.Gst
	gstValid     []bool
	writePointer int
	numSats      int
	threshold    uint16
	record       func(authentication.Code)
}

// NewNavStore allocates storage for numSats satellites and depth
// subframes of history. threshold is the number of authentication bits
// at which data is reported authenticated. record receives telemetry
// codes and may be nil.
func NewNavStore(numSats, depth int, threshold uint16, record func(authentication.Code)) *NavStore {
	if record == nil {
		record = func(authentication.Code) {}
	}
	s := &NavStore{
		ced:       make([]navItem, numSats*depth),
		timing:    make([]navItem, numSats*depth),
		gsts:      make([]galileo.Gst, depth),
		gstValid:  make([]bool, depth),
		numSats:   numSats,
		threshold: threshold,
		record:    record,
	}
	for i := range s.ced {
		s.ced[i].data = make([]byte, cedBytes)
		s.ced[i].age = make([]uint8, cedWords)
		s.ced[i].reset()
	}
	for i := range s.timing {
		s.timing[i].data = make([]byte, timingBytes)
		s.timing[i].age = make([]uint8, timingWords)
		s.timing[i].reset()
	}
	return s
}

func (s *NavStore) row(items []navItem, pointer int) []navItem {
	return items[pointer*s.numSats : (pointer+1)*s.numSats]
}

// FeedInav stores the navigation content of an INAV word.
func (s *NavStore) FeedInav(word []byte, svn galileo.Svn, gst galileo.Gst, band galileo.Band) {
	if len(word) != message.InavWordBytes {
		s.record(authentication.CodeMalformedBits)
		return
	}
	s.adjustWritePointer(gst.SubframeStart())
	w := message.NewInavWord(word)
	s.pickItem(s.ced, svn).feedCed(w, svn)
	s.pickItem(s.timing, svn).feedTiming(w, svn, band)
}

// pickItem selects the slot for svn in the current row: an existing
// entry for the same satellite, else a free slot, else the stalest one.
func (s *NavStore) pickItem(items []navItem, svn galileo.Svn) *navItem {
	row := s.row(items, s.writePointer)
	best := &row[0]
	bestScore := -1
	for i := range row {
		it := &row[i]
		var score int
		switch {
		case it.used && it.svn == svn:
			score = int(0xff) + 2
		case !it.used:
			score = int(0xff) + 1
		default:
			score = int(it.maxAge())
		}
		if score > bestScore {
			bestScore = score
			best = it
		}
	}
	if best.used && best.svn != svn {
		s.record(authentication.CodeStorageEvicted)
	}
	return best
}

func (s *NavStore) adjustWritePointer(gst galileo.Gst) {
	if s.gstValid[s.writePointer] && s.gsts[s.writePointer] != gst {
		// Carry the latest data forward to the new subframe slot and
		// age it by one.
		old := s.writePointer
		s.writePointer = (s.writePointer + 1) % len(s.gsts)
		s.copyRowForward(s.ced, old, s.writePointer)
		s.copyRowForward(s.timing, old, s.writePointer)
	}
	s.gsts[s.writePointer] = gst
	s.gstValid[s.writePointer] = true
}

func (s *NavStore) copyRowForward(items []navItem, from, to int) {
	src := s.row(items, from)
	dst := s.row(items, to)
	for i := range src {
		copy(dst[i].data, src[i].data)
		copy(dst[i].age, src[i].age)
		dst[i].svn = src[i].svn
		dst[i].used = src[i].used
		dst[i].authBits = src[i].authBits
		dst[i].authGst = src[i].authGst
		dst[i].contribs = src[i].contribs
		dst[i].numRefs = src[i].numRefs
		for j := range dst[i].age {
			if dst[i].age[j] != 0xff {
				dst[i].age[j]++
			}
		}
	}
}

func (it *navItem) claim(svn galileo.Svn) {
	switch {
	case it.used && it.svn == svn:
	default:
		it.reset()
		it.svn = svn
		it.used = true
	}
}

func (it *navItem) feedCed(w message.InavWord, svn galileo.Svn) {
	it.claim(svn)
	bits := w.Bits()
	switch w.Type() {
	case 1:
		it.copyWord(0, 120, bits.Range(6, 126), 0)
	case 2:
		it.copyWord(120, 240, bits.Range(6, 126), 1)
	case 3:
		it.copyWord(240, 362, bits.Range(6, 128), 2)
	case 4:
		it.copyWord(362, 482, bits.Range(6, 126), 3)
	case 5:
		it.copyWord(482, 549, bits.Range(6, 73), 4)
	}
}

func (it *navItem) feedTiming(w message.InavWord, svn galileo.Svn, band galileo.Band) {
	// Timing words are taken from E1-B only: the E5b word 6 layout
	// differs and must not be mixed in.
	if band != galileo.BandE1B {
		return
	}
	it.claim(svn)
	bits := w.Bits()
	switch w.Type() {
	case 6:
		it.copyWord(0, 99, bits.Range(6, 105), 0)
	case 10:
		it.copyWord(99, 141, bits.Range(86, 128), 1)
	}
}

func (s *NavStore) find(items []navItem, svn galileo.Svn, gst galileo.Gst) *navItem {
	for j := range s.gsts {
		if !s.gstValid[j] || s.gsts[j] != gst {
			continue
		}
		row := s.row(items, j)
		for i := range row {
			if row[i].used && row[i].svn == svn {
				return &row[i]
			}
		}
	}
	return nil
}

// get returns the most recent item for svn whose authentication bits
// have reached the threshold, searching backwards from the newest
// subframe.
func (s *NavStore) get(items []navItem, svn galileo.Svn, numBits int) (NavData, bool) {
	depth := len(s.gsts)
	for j := 0; j < depth; j++ {
		idx := (depth + s.writePointer - j) % depth
		if !s.gstValid[idx] {
			continue
		}
		row := s.row(items, idx)
		for i := range row {
			it := &row[i]
			if it.used && it.svn == svn && it.authBits >= s.threshold {
				return NavData{
					Data:     it.bits(numBits).Bytes(),
					Bits:     numBits,
					AuthBits: it.authBits,
					Gst:      s.gsts[idx],
					AuthGst:  it.authGst,
				}, true
			}
		}
	}
	return NavData{}, false
}

// CedAndStatus returns the most recent authenticated ephemeris, clock
// and status data for svn.
func (s *NavStore) CedAndStatus(svn galileo.Svn) (NavData, bool) {
	return s.get(s.ced, svn, cedBits)
}

// TimingParameters returns the most recent authenticated timing
// parameters for svn.
func (s *NavStore) TimingParameters(svn galileo.Svn) (NavData, bool) {
	return s.get(s.timing, svn, timingBits)
}

// ProcessMack verifies the tag0, ADKD=0 and ADKD=4 tags of a validated
// MACK message against stored navigation data. key must be the TESLA
// key disclosed in the subframe after gstMack. Slow MAC tags are left
// for ProcessMackSlow.
func (s *NavStore) ProcessMack(mack message.Mack, key authentication.Key, prna galileo.Svn,
	gstMack galileo.Gst, status message.NmaStatus) {
	gstNav := gstMack.AddSeconds(-galileo.SecondsPerSubframe)

	if cop := mack.Cop(); cop != 0 {
		if item := s.find(s.ced, prna, gstNav); item != nil {
			if int(item.maxAge())+1 <= int(cop) {
				s.checkTag(key, mack.Tag0(), gstMack, uint8(prna), prna, 0, status, item, s.ced, cedBits)
			}
		} else {
			s.record(authentication.CodeMissingNavData)
		}
	}

	for j := 1; j < mack.NumTags(); j++ {
		tag := mack.TagInfo(j)
		if tag.Cop() == 0 {
			continue
		}
		prnd := tag.Prnd()
		if prnd < 1 || prnd > galileo.NumSvns {
			s.record(authentication.CodeMalformedBits)
			continue
		}
		svnD := galileo.Svn(prnd)
		switch galileo.Adkd(tag.Adkd()) {
		case galileo.AdkdCed:
			item := s.find(s.ced, svnD, gstNav)
			if item == nil {
				s.record(authentication.CodeMissingNavData)
				continue
			}
			if int(item.maxAge())+1 <= int(tag.Cop()) {
				s.checkTag(key, tag.Tag(), gstMack, prnd, prna, j, status, item, s.ced, cedBits)
			}
		case galileo.AdkdTiming:
			item := s.find(s.timing, svnD, gstNav)
			if item == nil {
				s.record(authentication.CodeMissingNavData)
				continue
			}
			if int(item.maxAge())+1 <= int(tag.Cop()) {
				s.checkTag(key, tag.Tag(), gstMack, prnd, prna, j, status, item, s.timing, timingBits)
			}
		case galileo.AdkdSlowMac:
			// Verified against a later key; see ProcessMackSlow.
		default:
			s.record(authentication.CodeMalformedBits)
		}
	}
}

// ProcessMackSlow verifies the Slow MAC (ADKD=12) tags of a validated
// MACK message. key must be the TESLA key disclosed 11 subframes after
// gstMack.
func (s *NavStore) ProcessMackSlow(mack message.Mack, key authentication.Key, prna galileo.Svn,
	gstMack galileo.Gst, status message.NmaStatus) {
	gstNav := gstMack.AddSeconds(-galileo.SecondsPerSubframe)
	for j := 1; j < mack.NumTags(); j++ {
		tag := mack.TagInfo(j)
		if galileo.Adkd(tag.Adkd()) != galileo.AdkdSlowMac || tag.Cop() == 0 {
			continue
		}
		prnd := tag.Prnd()
		if prnd < 1 || prnd > galileo.NumSvns {
			s.record(authentication.CodeMalformedBits)
			continue
		}
		item := s.find(s.ced, galileo.Svn(prnd), gstNav)
		if item == nil {
			s.record(authentication.CodeMissingNavData)
			continue
		}
		if int(item.maxAge())+1 <= int(tag.Cop()) {
			s.checkTag(key, tag.Tag(), gstMack, prnd, prna, j, status, item, s.ced, cedBits)
		}
	}
}

// checkTag verifies one tag against item's bits and, on success, adds
// the tag's length to every stored copy of the same data, deduplicated
// by (PRN_A, tag subframe, slot).
func (s *NavStore) checkTag(key authentication.Key, tag bitfield.Slice, gstTag galileo.Gst,
	prnd uint8, prna galileo.Svn, slot int, status message.NmaStatus,
	item *navItem, items []navItem, numBits int) {
	navdata := item.bits(numBits)
	var ok bool
	if slot == 0 {
		ok = key.ValidateTag0(tag, gstTag, prna, status, navdata)
	} else {
		ok = key.ValidateTag(tag, gstTag, prnd, prna, uint8(slot+1), status, navdata)
	}
	if !ok {
		s.record(authentication.CodeTagMismatch)
		log.Warning("E%02d tag%d at %v wrong (auth by %v)", prnd, slot, gstTag, prna)
		return
	}
	log.Info("E%02d tag%d at %v correct (auth by %v)", prnd, slot, gstTag, prna)
	ref := tagRef{prna: prna, wn: gstTag.Wn(), tow: gstTag.Tow(), slot: uint8(slot)}
	for i := range items {
		it := &items[i]
		if it.used && it.svn == item.svn && it.bits(numBits).Equal(navdata) {
			if it.addContribution(ref, tag.Len()) && it.authBits >= s.threshold {
				it.authGst = gstTag
			}
		}
	}
}
