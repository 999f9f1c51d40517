// Package maclt holds the MAC look-up table of ICD Annex C and the
// accessors used to check the tag sequence of a MACK message against
// the table entry selected by the chain in force.
package maclt

import (
	"fmt"

	"github.com/navsec/osnma/pkg/galileo"
)

// MaxFlexSlots is the largest number of FLX slots in any single table
// sequence. It bounds the buffer needed for MACSEQ verification.
const MaxFlexSlots = 4

const maxTags = 10

// Slot is one position of a look-up table sequence.
type Slot struct {
	// Flex marks a flexible slot; Adkd and CrossAuth are meaningful
	// only when Flex is false.
	Flex bool
	// Adkd is the fixed ADKD of the slot.
	Adkd galileo.Adkd
	// CrossAuth is true for 'E' entries, which authenticate another
	// satellite's data, and false for self-authenticating 'S' entries.
	CrossAuth bool
}

// Shorthands matching the notation of Annex C.
var (
	s00 = Slot{Adkd: galileo.AdkdCed}
	e00 = Slot{Adkd: galileo.AdkdCed, CrossAuth: true}
	s04 = Slot{Adkd: galileo.AdkdTiming}
	s12 = Slot{Adkd: galileo.AdkdSlowMac}
	e12 = Slot{Adkd: galileo.AdkdSlowMac, CrossAuth: true}
	flx = Slot{Flex: true}
)

type entry struct {
	id uint8
	nt int
	// The leading 00S slot of every sequence is omitted: it is tag0 and
	// is never looked up. Positions beyond nt-1 are unused.
	sequence [2][maxTags - 1]Slot
}

// The table rows currently defined by Annex C. The two sequences of a
// row are selected by the half of the GST minute the MACK falls in.
var table = []entry{
	{id: 27, nt: 6, sequence: [2][maxTags - 1]Slot{
		{e00, e00, e00, s12, e00},
		{e00, e00, s04, s12, e00},
	}},
	{id: 28, nt: 10, sequence: [2][maxTags - 1]Slot{
		{e00, e00, e00, s00, e00, e00, s12, e00, e00},
		{e00, e00, s00, e00, e00, s04, s12, e00, e00},
	}},
	{id: 31, nt: 5, sequence: [2][maxTags - 1]Slot{
		{e00, e00, s12, e00},
		{e00, e00, s12, s04},
	}},
	{id: 33, nt: 6, sequence: [2][maxTags - 1]Slot{
		{e00, s04, e00, s12, e00},
		{e00, e00, s12, e00, e12},
	}},
	{id: 34, nt: 6, sequence: [2][maxTags - 1]Slot{
		{flx, s04, flx, s12, e00},
		{flx, e00, s12, e00, e12},
	}},
	{id: 35, nt: 6, sequence: [2][maxTags - 1]Slot{
		{flx, s04, flx, s12, flx},
		{flx, flx, s12, flx, flx},
	}},
	{id: 36, nt: 5, sequence: [2][maxTags - 1]Slot{
		{flx, s04, flx, s12},
		{flx, e00, s12, e12},
	}},
	{id: 37, nt: 5, sequence: [2][maxTags - 1]Slot{
		{e00, s04, e00, s12},
		{e00, e00, s12, e12},
	}},
	{id: 38, nt: 5, sequence: [2][maxTags - 1]Slot{
		{flx, s04, flx, s12},
		{flx, flx, s12, flx},
	}},
	{id: 39, nt: 4, sequence: [2][maxTags - 1]Slot{
		{flx, s04, flx},
		{flx, e00, s12},
	}},
	{id: 40, nt: 4, sequence: [2][maxTags - 1]Slot{
		{e00, s04, s12},
		{e00, e00, e12},
	}},
	{id: 41, nt: 4, sequence: [2][maxTags - 1]Slot{
		{flx, s04, flx},
		{flx, flx, s12},
	}},
}

func find(id uint8) (*entry, error) {
	for i := range table {
		if table[i].id == id {
			return &table[i], nil
		}
	}
	return nil, fmt.Errorf("MAC look-up table id %d not defined", id)
}

// Lookup returns the table slot for the given table id, sequence number
// (0 or 1, the half of the GST minute) and tag position. Tag positions
// start at 1; tag0 is fixed by the ICD and not part of the table.
func Lookup(id uint8, seq, numTag int) (Slot, error) {
	if seq != 0 && seq != 1 {
		panic("maclt: sequence must be 0 or 1")
	}
	if numTag < 1 {
		panic("maclt: tag number must be positive")
	}
	e, err := find(id)
	if err != nil {
		return Slot{}, err
	}
	if numTag >= e.nt {
		return Slot{}, fmt.Errorf("tag number %d exceeds table entry size %d", numTag, e.nt)
	}
	return e.sequence[seq][numTag-1], nil
}

// FlexIndices returns the tag positions holding FLX slots for the given
// table id and sequence number, in increasing order.
func FlexIndices(id uint8, seq int) ([]int, error) {
	if seq != 0 && seq != 1 {
		panic("maclt: sequence must be 0 or 1")
	}
	e, err := find(id)
	if err != nil {
		return nil, err
	}
	var out []int
	for j := 0; j < e.nt-1; j++ {
		if e.sequence[seq][j].Flex {
			out = append(out, j+1)
		}
	}
	return out, nil
}
