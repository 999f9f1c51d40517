package storage

import (
	"github.com/navsec/osnma/internal/log"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

type mackEntry struct {
	data   [message.MackMessageBytes]byte
	svn    galileo.Svn
	status message.NmaStatus
	used   bool
}

// MackStore keeps a sliding history of MACK messages per satellite so
// that tags can be checked once their TESLA key is disclosed. The
// history depth and satellite count are fixed at construction; storing
// a new subframe overwrites the oldest one.
type MackStore struct {
	macks        []mackEntry // depth * numSats entries
	gsts         []galileo.Gst
	gstValid     []bool
	numSats      int
	writePointer int
}

// NewMackStore allocates a store holding depth subframes for numSats
// satellites.
func NewMackStore(numSats, depth int) *MackStore {
	return &MackStore{
		macks:    make([]mackEntry, numSats*depth),
		gsts:     make([]galileo.Gst, depth),
		gstValid: make([]bool, depth),
		numSats:  numSats,
	}
}

// Store keeps the MACK message transmitted by svn in the subframe
// starting at gst, along with the NMA status it was received under.
func (s *MackStore) Store(mack []byte, svn galileo.Svn, gst galileo.Gst, status message.NmaStatus) {
	if len(mack) != message.MackMessageBytes {
		return
	}
	s.adjustWritePointer(gst)
	row := s.macks[s.writePointer*s.numSats : (s.writePointer+1)*s.numSats]
	for i := range row {
		if !row[i].used {
			copy(row[i].data[:], mack)
			row[i].svn = svn
			row[i].status = status
			row[i].used = true
			return
		}
	}
	log.Warning("no room to store MACK for %v at %v", svn, gst)
}

func (s *MackStore) adjustWritePointer(gst galileo.Gst) {
	if s.gstValid[s.writePointer] && s.gsts[s.writePointer] != gst {
		s.writePointer = (s.writePointer + 1) % len(s.gsts)
		row := s.macks[s.writePointer*s.numSats : (s.writePointer+1)*s.numSats]
		for i := range row {
			row[i].used = false
		}
	}
	s.gsts[s.writePointer] = gst
	s.gstValid[s.writePointer] = true
}

// Get returns the stored MACK message of svn for the subframe starting
// at gst, with the NMA status it was stored under.
func (s *MackStore) Get(svn galileo.Svn, gst galileo.Gst) ([]byte, message.NmaStatus, bool) {
	for j := range s.gsts {
		if !s.gstValid[j] || s.gsts[j] != gst {
			continue
		}
		row := s.macks[j*s.numSats : (j+1)*s.numSats]
		for i := range row {
			if row[i].used && row[i].svn == svn {
				return row[i].data[:], row[i].status, true
			}
		}
	}
	return nil, 0, false
}
