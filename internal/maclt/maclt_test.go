package maclt

import (
	"testing"

	"github.com/navsec/osnma/pkg/galileo"
)

func TestLookup(t *testing.T) {
	slot, err := Lookup(34, 0, 1)
	if err != nil || !slot.Flex {
		t.Errorf("Lookup(34, 0, 1) = %+v, %v, want FLX", slot, err)
	}
	slot, err = Lookup(34, 0, 2)
	if err != nil || slot.Flex || slot.Adkd != galileo.AdkdTiming || slot.CrossAuth {
		t.Errorf("Lookup(34, 0, 2) = %+v, %v, want 04S", slot, err)
	}
	slot, err = Lookup(34, 1, 5)
	if err != nil || slot.Flex || slot.Adkd != galileo.AdkdSlowMac || !slot.CrossAuth {
		t.Errorf("Lookup(34, 1, 5) = %+v, %v, want 12E", slot, err)
	}
	if _, err := Lookup(26, 0, 1); err == nil {
		t.Error("Lookup(26, ...) should fail: id not defined")
	}
	if _, err := Lookup(34, 0, 6); err == nil {
		t.Error("Lookup(34, 0, 6) should fail: beyond nt")
	}
}

func TestFlexIndices(t *testing.T) {
	indices, err := FlexIndices(34, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(indices) != 2 || indices[0] != 1 || indices[1] != 3 {
		t.Errorf("FlexIndices(34, 0) = %v, want [1 3]", indices)
	}
	indices, err = FlexIndices(34, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(indices) != 1 || indices[0] != 1 {
		t.Errorf("FlexIndices(34, 1) = %v, want [1]", indices)
	}
	indices, err = FlexIndices(33, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(indices) != 0 {
		t.Errorf("FlexIndices(33, 0) = %v, want none", indices)
	}
}

// The MaxFlexSlots constant must cover the largest FLX count of any
// sequence in the table.
func TestMaxFlexSlots(t *testing.T) {
	max := 0
	for _, e := range table {
		for seq := 0; seq < 2; seq++ {
			count := 0
			for j := 0; j < e.nt-1; j++ {
				if e.sequence[seq][j].Flex {
					count++
				}
			}
			if count > max {
				max = count
			}
		}
	}
	if max != MaxFlexSlots {
		t.Errorf("largest FLX count is %d, MaxFlexSlots is %d", max, MaxFlexSlots)
	}
}

func TestTimingSlotsAreSelfAuth(t *testing.T) {
	for _, e := range table {
		for seq := 0; seq < 2; seq++ {
			for j := 0; j < e.nt-1; j++ {
				s := e.sequence[seq][j]
				if !s.Flex && s.Adkd == galileo.AdkdTiming && s.CrossAuth {
					t.Errorf("table id %d seq %d slot %d: timing slot must be self-authenticating", e.id, seq, j+1)
				}
			}
		}
	}
}
