// Package galmon reads and writes the Galmon transport protocol, the
// length-prefixed protobuf stream produced by the galmon tools
// (ubxtool and friends). Only the Galileo INAV part of the navmon
// schema is materialized; other message types pass through undecoded.
package galmon

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message type values of the navmon schema.
const (
	TypeReceptionData    = 1
	TypeObserverPosition = 2
	TypeGalileoInav      = 3
)

// Field numbers of the navmon.proto NavMonMessage message.
const (
	fieldSourceID     = 1
	fieldType         = 2
	fieldLocalUtcSec  = 3
	fieldLocalUtcNano = 4
	fieldGalileoInav  = 5
)

// Field numbers of the nested GalileoInav message.
const (
	fieldGnssWN    = 1
	fieldGnssTOW   = 2
	fieldGnssID    = 3
	fieldGnssSV    = 4
	fieldContents  = 5
	fieldSigid     = 6
	fieldReserved1 = 7
	fieldReserved2 = 8
	fieldSsp       = 9
)

// GalileoInav is one received INAV page: the 128-bit word content plus
// the OSNMA bits from the reserved field.
type GalileoInav struct {
	GnssWN  uint32
	GnssTOW uint32
	GnssID  uint32
	GnssSV  uint32
	// Contents is the 16-byte INAV word data content.
	Contents []byte
	// Sigid is the signal id: 1 for E1-B, 5 for E5b-I.
	Sigid    uint32
	HasSigid bool
	// Reserved1 carries the 40 OSNMA bits when present.
	Reserved1 []byte
	Reserved2 []byte
	Ssp       uint32
}

// NavMonMessage is the envelope of the navmon stream.
type NavMonMessage struct {
	SourceID     uint64
	Type         uint64
	LocalUtcSec  uint64
	LocalUtcNano uint64
	// GI is set for Galileo INAV messages.
	GI *GalileoInav
}

// Unmarshal decodes a NavMonMessage from protobuf wire format.
// Unknown fields are skipped.
func Unmarshal(data []byte) (*NavMonMessage, error) {
	var m NavMonMessage
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "navmon tag")
		}
		data = data[n:]
		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "navmon varint")
			}
			data = data[n:]
			switch num {
			case fieldSourceID:
				m.SourceID = v
			case fieldType:
				m.Type = v
			case fieldLocalUtcSec:
				m.LocalUtcSec = v
			case fieldLocalUtcNano:
				m.LocalUtcNano = v
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "navmon bytes")
			}
			data = data[n:]
			if num == fieldGalileoInav {
				gi, err := unmarshalInav(v)
				if err != nil {
					return nil, err
				}
				m.GI = gi
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "navmon field")
			}
			data = data[n:]
		}
	}
	return &m, nil
}

func unmarshalInav(data []byte) (*GalileoInav, error) {
	var gi GalileoInav
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "inav tag")
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "inav varint")
			}
			data = data[n:]
			switch num {
			case fieldGnssWN:
				gi.GnssWN = uint32(v)
			case fieldGnssTOW:
				gi.GnssTOW = uint32(v)
			case fieldGnssID:
				gi.GnssID = uint32(v)
			case fieldGnssSV:
				gi.GnssSV = uint32(v)
			case fieldSigid:
				gi.Sigid = uint32(v)
				gi.HasSigid = true
			case fieldSsp:
				gi.Ssp = uint32(v)
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "inav bytes")
			}
			data = data[n:]
			switch num {
			case fieldContents:
				gi.Contents = append([]byte(nil), v...)
			case fieldReserved1:
				gi.Reserved1 = append([]byte(nil), v...)
			case fieldReserved2:
				gi.Reserved2 = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "inav field")
			}
			data = data[n:]
		}
	}
	return &gi, nil
}

// Marshal encodes a NavMonMessage into protobuf wire format.
func Marshal(m *NavMonMessage) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldSourceID, protowire.VarintType)
	out = protowire.AppendVarint(out, m.SourceID)
	out = protowire.AppendTag(out, fieldType, protowire.VarintType)
	out = protowire.AppendVarint(out, m.Type)
	out = protowire.AppendTag(out, fieldLocalUtcSec, protowire.VarintType)
	out = protowire.AppendVarint(out, m.LocalUtcSec)
	out = protowire.AppendTag(out, fieldLocalUtcNano, protowire.VarintType)
	out = protowire.AppendVarint(out, m.LocalUtcNano)
	if m.GI != nil {
		out = protowire.AppendTag(out, fieldGalileoInav, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalInav(m.GI))
	}
	return out
}

func marshalInav(gi *GalileoInav) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldGnssWN, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(gi.GnssWN))
	out = protowire.AppendTag(out, fieldGnssTOW, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(gi.GnssTOW))
	out = protowire.AppendTag(out, fieldGnssID, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(gi.GnssID))
	out = protowire.AppendTag(out, fieldGnssSV, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(gi.GnssSV))
	out = protowire.AppendTag(out, fieldContents, protowire.BytesType)
	out = protowire.AppendBytes(out, gi.Contents)
	if gi.HasSigid {
		out = protowire.AppendTag(out, fieldSigid, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(gi.Sigid))
	}
	if gi.Reserved1 != nil {
		out = protowire.AppendTag(out, fieldReserved1, protowire.BytesType)
		out = protowire.AppendBytes(out, gi.Reserved1)
	}
	if gi.Reserved2 != nil {
		out = protowire.AppendTag(out, fieldReserved2, protowire.BytesType)
		out = protowire.AppendBytes(out, gi.Reserved2)
	}
	return out
}
