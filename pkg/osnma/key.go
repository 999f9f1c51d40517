package osnma

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/navsec/osnma/internal/authentication"
)

// PublicKey is an OSNMA ECDSA public key (P-256 or P-521) with its
// public key ID.
type PublicKey = authentication.PublicKey

// MerkleRoot is the root of the OSNMA public key Merkle tree.
type MerkleRoot = authentication.MerkleRoot

// NewPublicKey wraps an ECDSA key after checking the curve is one of
// the two the ICD admits.
func NewPublicKey(key *ecdsa.PublicKey, pkid uint8) (PublicKey, error) {
	if key.Curve != elliptic.P256() && key.Curve != elliptic.P521() {
		return PublicKey{}, errors.Errorf("unsupported curve %s", key.Curve.Params().Name)
	}
	if pkid > 15 {
		return PublicKey{}, errors.Errorf("public key id %d out of range", pkid)
	}
	return PublicKey{Key: key, ID: pkid}, nil
}

// LoadPublicKey loads an OSNMA public key from a file. Supported
// formats:
//   - PKIX PEM ("BEGIN PUBLIC KEY"), as published by the GSC
//   - binary SEC1 curve point (compressed or uncompressed)
//   - hex-encoded SEC1 curve point
func LoadPublicKey(filename string, pkid uint8) (PublicKey, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return PublicKey{}, errors.Wrap(err, "reading public key")
	}
	if block, _ := pem.Decode(raw); block != nil {
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return PublicKey{}, errors.Wrap(err, "parsing public key PEM")
		}
		key, ok := parsed.(*ecdsa.PublicKey)
		if !ok {
			return PublicKey{}, errors.New("public key is not an ECDSA key")
		}
		return NewPublicKey(key, pkid)
	}
	point := raw
	if decoded, err := hex.DecodeString(strings.TrimSpace(string(raw))); err == nil {
		point = decoded
	}
	key, err := parseSec1Point(point)
	if err != nil {
		return PublicKey{}, err
	}
	return NewPublicKey(key, pkid)
}

func parseSec1Point(point []byte) (*ecdsa.PublicKey, error) {
	for _, curve := range []elliptic.Curve{elliptic.P256(), elliptic.P521()} {
		var x, y *big.Int
		if len(point) > 0 && point[0] == 4 {
			x, y = elliptic.Unmarshal(curve, point)
		} else {
			x, y = elliptic.UnmarshalCompressed(curve, point)
		}
		if x != nil {
			return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
		}
	}
	return nil, errors.New("not a valid SEC1 point on P-256 or P-521")
}

// LoadMerkleRoot reads a 256-bit Merkle tree root from a file holding
// its hex representation, as distributed in the GSC Merkle tree XML.
func LoadMerkleRoot(filename string) (MerkleRoot, error) {
	var root MerkleRoot
	raw, err := os.ReadFile(filename)
	if err != nil {
		return root, errors.Wrap(err, "reading Merkle root")
	}
	return ParseMerkleRoot(strings.TrimSpace(string(raw)))
}

// ParseMerkleRoot parses the 64-digit hex form of a Merkle tree root.
func ParseMerkleRoot(s string) (MerkleRoot, error) {
	var root MerkleRoot
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return root, errors.Wrap(err, "parsing Merkle root")
	}
	if len(b) != len(root) {
		return root, errors.Errorf("Merkle root is %d bytes, want %d", len(b), len(root))
	}
	copy(root[:], b)
	return root, nil
}
