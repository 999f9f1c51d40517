package message

import (
	"github.com/navsec/osnma/internal/bitfield"
)

// DsmKind distinguishes the two DSM message types carried over HKROOT.
type DsmKind uint8

const (
	// DsmKroot carries a signed TESLA root key (DSM IDs 0 to 11).
	DsmKroot DsmKind = iota
	// DsmPkr carries a signed public key and its Merkle tree path
	// (DSM IDs 12 to 15).
	DsmPkr
)

// DsmHeader is the second byte of an HKROOT message.
type DsmHeader uint8

// DsmID returns the DSM ID field.
func (h DsmHeader) DsmID() uint8 { return uint8(h >> 4) }

// BlockID returns the DSM block ID field.
func (h DsmHeader) BlockID() uint8 { return uint8(h) & 0xf }

// Kind returns the DSM message type selected by the DSM ID.
func (h DsmHeader) Kind() DsmKind {
	if h.DsmID() >= 12 {
		return DsmPkr
	}
	return DsmKroot
}

// Kroot wraps a reassembled DSM-KROOT message. The slice must hold the
// complete message; accessors panic on truncated input, so callers must
// check BlockCount against the reassembled length first.
type Kroot struct {
	data []byte
}

// NewKroot wraps data as a DSM-KROOT message.
func NewKroot(data []byte) Kroot { return Kroot{data: data} }

func (k Kroot) bits() bitfield.Slice { return bitfield.New(k.data) }

// BlockCount returns the number of DSM blocks declared by the NB_DK
// field, or false if the field holds a reserved value.
func (k Kroot) BlockCount() (int, bool) {
	v := int(k.bits().Uint(0, 4))
	if v < 1 || v > 8 {
		return 0, false
	}
	return v + 6, true
}

// PublicKeyID returns the PKID field.
func (k Kroot) PublicKeyID() uint8 { return uint8(k.bits().Uint(4, 8)) }

// ChainID returns the CIDKR field.
func (k Kroot) ChainID() uint8 { return uint8(k.bits().Uint(8, 10)) }

// HashFunc values of the HF field.
type HashFunc uint8

const (
	HashSha256   HashFunc = 0
	HashSha3_256 HashFunc = 2
)

// HashFunc returns the HF field. The second value is false for reserved
// codes.
func (k Kroot) HashFunc() (HashFunc, bool) {
	switch v := k.bits().Uint(12, 14); v {
	case 0:
		return HashSha256, true
	case 2:
		return HashSha3_256, true
	default:
		return 0, false
	}
}

// MacFunc values of the MF field.
type MacFunc uint8

const (
	MacHmacSha256 MacFunc = 0
	MacCmacAes    MacFunc = 1
)

// MacFunc returns the MF field. The second value is false for reserved
// codes.
func (k Kroot) MacFunc() (MacFunc, bool) {
	switch v := k.bits().Uint(14, 16); v {
	case 0:
		return MacHmacSha256, true
	case 1:
		return MacCmacAes, true
	default:
		return 0, false
	}
}

// keySizes maps the KS field to TESLA key sizes in bits.
var keySizes = [...]int{96, 104, 112, 120, 128, 160, 192, 224, 256}

// KeySizeBits returns the TESLA key size declared by the KS field, or
// false for reserved codes. All defined sizes are whole bytes.
func (k Kroot) KeySizeBits() (int, bool) {
	v := int(k.bits().Uint(16, 20))
	if v >= len(keySizes) {
		return 0, false
	}
	return keySizes[v], true
}

// TagSizeBits returns the tag size declared by the TS field, or false
// for reserved codes.
func (k Kroot) TagSizeBits() (int, bool) {
	v := int(k.bits().Uint(20, 24))
	if v < 5 || v > 9 {
		return 0, false
	}
	return []int{20, 24, 28, 32, 40}[v-5], true
}

// MacLookupTable returns the MACLT field.
func (k Kroot) MacLookupTable() uint8 { return uint8(k.bits().Uint(24, 32)) }

// KrootWn returns the WNK field: the week number of the root key.
func (k Kroot) KrootWn() uint16 { return uint16(k.bits().Uint(36, 48)) }

// KrootTowh returns the TOWHK field: the root key time of week in hours.
func (k Kroot) KrootTowh() uint8 { return uint8(k.bits().Uint(48, 56)) }

// Alpha returns the 48-bit chain random pattern.
func (k Kroot) Alpha() uint64 { return k.bits().Uint(56, 104) }

// RootKey returns the KROOT field. The second value is false when the
// key size field is reserved.
func (k Kroot) RootKey() ([]byte, bool) {
	size, ok := k.KeySizeBits()
	if !ok {
		return nil, false
	}
	return k.data[13 : 13+size/8], true
}

// SignatureSizeP256 and SignatureSizeP521 are the raw ECDSA signature
// sizes of the two admissible curves, in bytes.
const (
	SignatureSizeP256 = 64
	SignatureSizeP521 = 132
)

// CurveP256 reports whether the digital signature length implies ECDSA
// P-256/SHA-256 (true) or P-521/SHA-512 (false). The ICD does not carry
// the curve explicitly; it is recovered from the space left between the
// KROOT field and the end of the message modulo the block padding. The
// second value is false when neither curve fits.
func (k Kroot) CurveP256() (p256, ok bool) {
	key, ok := k.RootKey()
	if !ok {
		return false, false
	}
	remaining := len(k.data) - 13 - len(key)
	pad256 := (DsmBlockBytes - (len(key)+SignatureSizeP256)%DsmBlockBytes) % DsmBlockBytes
	pad521 := (DsmBlockBytes - (len(key)+SignatureSizeP521)%DsmBlockBytes) % DsmBlockBytes
	switch remaining {
	case SignatureSizeP256 + pad256:
		return true, true
	case SignatureSizeP521 + pad521:
		return false, true
	}
	return false, false
}

// Signature returns the digital signature field, or false when the
// curve cannot be determined.
func (k Kroot) Signature() ([]byte, bool) {
	p256, ok := k.CurveP256()
	if !ok {
		return nil, false
	}
	size := SignatureSizeP521
	if p256 {
		size = SignatureSizeP256
	}
	key, _ := k.RootKey()
	start := 13 + len(key)
	return k.data[start : start+size], true
}

// Padding returns the P_DK field, or false when the signature bounds
// cannot be determined.
func (k Kroot) Padding() ([]byte, bool) {
	sig, ok := k.Signature()
	if !ok {
		return nil, false
	}
	key, _ := k.RootKey()
	return k.data[13+len(key)+len(sig):], true
}

// SignatureMessage assembles the byte string covered by the DSM-KROOT
// digital signature: the NMA header followed by the message from the
// CIDKR byte through the end of the KROOT field.
func (k Kroot) SignatureMessage(header NmaHeader) ([]byte, bool) {
	key, ok := k.RootKey()
	if !ok {
		return nil, false
	}
	end := 13 + len(key)
	msg := make([]byte, end)
	msg[0] = byte(header)
	copy(msg[1:], k.data[1:end])
	return msg, true
}

// Pkr wraps a reassembled DSM-PKR message.
type Pkr struct {
	data []byte
}

// NewPkr wraps data as a DSM-PKR message.
func NewPkr(data []byte) Pkr { return Pkr{data: data} }

func (p Pkr) bits() bitfield.Slice { return bitfield.New(p.data) }

// BlockCount returns the number of DSM blocks declared by the NB_DP
// field, or false for reserved values.
func (p Pkr) BlockCount() (int, bool) {
	v := int(p.bits().Uint(0, 4))
	if v < 7 || v > 10 {
		return 0, false
	}
	return v + 6, true
}

// MessageID returns the MID field, which selects the Merkle tree leaf
// position.
func (p Pkr) MessageID() uint8 { return uint8(p.bits().Uint(4, 8)) }

// MerkleNodeBytes is the size of a Merkle tree node.
const MerkleNodeBytes = 32

// MerkleTreeDepth is the depth of the OSNMA public key Merkle tree.
const MerkleTreeDepth = 4

// IntermediateNode returns the 256-bit intermediate tree node at
// position i (0 to 3).
func (p Pkr) IntermediateNode(i int) []byte {
	if i < 0 || i >= MerkleTreeDepth {
		panic("message: intermediate node index out of range")
	}
	return p.data[1+i*MerkleNodeBytes : 1+(i+1)*MerkleNodeBytes]
}

// PkrKeyType is the NPKT field of a DSM-PKR message.
type PkrKeyType uint8

const (
	PkrKeyReserved PkrKeyType = iota
	PkrKeyP256
	PkrKeyP521
	PkrKeyAlert
)

// KeyType returns the decoded NPKT field.
func (p Pkr) KeyType() PkrKeyType {
	switch p.bits().Uint(1032, 1036) {
	case 1:
		return PkrKeyP256
	case 3:
		return PkrKeyP521
	case 4:
		return PkrKeyAlert
	}
	return PkrKeyReserved
}

// NewKeyID returns the NPKID field.
func (p Pkr) NewKeyID() uint8 { return uint8(p.bits().Uint(1036, 1040)) }

// keySizeBytes gives the NPK field size, or false when it cannot be
// determined from the NPKT and NB_DP fields.
func (p Pkr) keySizeBytes() (int, bool) {
	switch p.KeyType() {
	case PkrKeyP256:
		return 264 / 8, true
	case PkrKeyP521:
		return 536 / 8, true
	case PkrKeyAlert:
		nb, ok := p.BlockCount()
		if !ok {
			return 0, false
		}
		return nb*DsmBlockBytes - 1040/8, true
	}
	return 0, false
}

// NewKey returns the NPK field, or false when its size cannot be
// determined.
func (p Pkr) NewKey() ([]byte, bool) {
	size, ok := p.keySizeBytes()
	if !ok {
		return nil, false
	}
	return p.data[130 : 130+size], true
}

// MerkleLeaf returns the Merkle tree leaf covered by the hash chain:
// NPKT ‖ NPKID ‖ NPK.
func (p Pkr) MerkleLeaf() ([]byte, bool) {
	size, ok := p.keySizeBytes()
	if !ok {
		return nil, false
	}
	return p.data[129 : 130+size], true
}

// Padding returns the P_DP field, or false when the NPK size cannot be
// determined. The padding is empty for Alert messages.
func (p Pkr) Padding() ([]byte, bool) {
	size, ok := p.keySizeBytes()
	nb, nbOK := p.BlockCount()
	if !ok || !nbOK {
		return nil, false
	}
	return p.data[130+size : nb*DsmBlockBytes], true
}
