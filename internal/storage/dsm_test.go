package storage

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/navsec/osnma/internal/authentication"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\t' {
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		t.Fatalf("bad hex in test data: %v", err)
	}
	return b
}

// HKROOT messages broadcast on 2022-03-07 ~9:00 UTC, in reception
// order. The DSM completes on the last one.
func hkroots2022(t *testing.T) [][]byte {
	lines := []string{
		"52 25 01 9d 5b 6e 1d d1 87 b9 45 3c df 06 ca",
		"52 23 a4 c6 6d 7e 3d 29 18 53 ba 5a 13 c9 c3",
		"52 27 cb 12 29 89 77 35 c0 21 b0 41 73 93 b5",
		"52 26 7f 34 ea 14 97 52 5a af 18 f1 f9 f1 fc",
		"52 24 48 4a 26 77 70 11 2a 13 38 3e a5 2d 3a",
		"52 20 22 50 49 21 04 98 21 25 d3 96 4d a3 a2",
		"52 27 cb 12 29 89 77 35 c0 21 b0 41 73 93 b5",
		"52 25 01 9d 5b 6e 1d d1 87 b9 45 3c df 06 ca",
		"52 20 22 50 49 21 04 98 21 25 d3 96 4d a3 a2",
		"52 20 22 50 49 21 04 98 21 25 d3 96 4d a3 a2",
		"52 26 7f 34 ea 14 97 52 5a af 18 f1 f9 f1 fc",
		"52 21 84 1e 1d e4 d4 58 c0 e9 84 24 76 e0 04",
		"52 27 cb 12 29 89 77 35 c0 21 b0 41 73 93 b5",
		"52 22 66 6c f3 79 58 de 28 51 97 a2 63 53 f1",
	}
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = unhex(t, l)
	}
	return out
}

func TestDsmCollect(t *testing.T) {
	c := NewDsmCollector(nil)
	hkroots := hkroots2022(t)
	gst := galileo.MustGst(1176, 120900)
	for i, hkroot := range hkroots {
		dsm, done := c.Feed(message.DsmHeader(hkroot[1]), hkroot[2:], gst.AddSubframes(i))
		if i < len(hkroots)-1 {
			if done {
				t.Fatalf("DSM completed early at message %d", i)
			}
			continue
		}
		if !done {
			t.Fatal("DSM did not complete")
		}
		if dsm.ID != 2 || dsm.Kind != message.DsmKroot {
			t.Errorf("DSM id = %d, kind = %v", dsm.ID, dsm.Kind)
		}
		want := unhex(t, `
			22 50 49 21 04 98 21 25 d3 96 4d a3 a2 84 1e 1d
			e4 d4 58 c0 e9 84 24 76 e0 04 66 6c f3 79 58 de
			28 51 97 a2 63 53 f1 a4 c6 6d 7e 3d 29 18 53 ba
			5a 13 c9 c3 48 4a 26 77 70 11 2a 13 38 3e a5 2d
			3a 01 9d 5b 6e 1d d1 87 b9 45 3c df 06 ca 7f 34
			ea 14 97 52 5a af 18 f1 f9 f1 fc cb 12 29 89 77
			35 c0 21 b0 41 73 93 b5`)
		if !bytes.Equal(dsm.Data, want) {
			t.Errorf("DSM data = %x", dsm.Data)
		}
	}
}

func TestDsmTimeout(t *testing.T) {
	evictions := 0
	c := NewDsmCollector(func(code authentication.Code) {
		if code == authentication.CodeDsmIncomplete {
			evictions++
		}
	})
	gst := galileo.MustGst(1176, 120900)
	// One block of DSM id 2, then silence for long enough to evict.
	hkroot := hkroots2022(t)[0]
	if _, done := c.Feed(message.DsmHeader(hkroot[1]), hkroot[2:], gst); done {
		t.Fatal("single block completed a DSM")
	}
	// Progress on a different DSM id advances time past the timeout.
	other := hkroots2022(t)[1]
	otherHeader := message.DsmHeader(0x35) // DSM id 3
	c.Feed(otherHeader, other[2:], gst.AddSubframes(17))
	if evictions != 1 {
		t.Errorf("evictions = %d, want 1", evictions)
	}
}

func TestDsmConflictingBlockRestarts(t *testing.T) {
	c := NewDsmCollector(nil)
	gst := galileo.MustGst(1176, 120900)
	hkroot := hkroots2022(t)[0]
	c.Feed(message.DsmHeader(hkroot[1]), hkroot[2:], gst)
	// The same block id with different contents restarts collection.
	altered := append([]byte{}, hkroot[2:]...)
	altered[0] ^= 0xff
	if _, done := c.Feed(message.DsmHeader(hkroot[1]), altered, gst.AddSubframes(1)); done {
		t.Fatal("conflicting block completed a DSM")
	}
}
