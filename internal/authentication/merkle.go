package authentication

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"

	"github.com/navsec/osnma/internal/message"
)

// MerkleRoot is the 256-bit root of the OSNMA public key Merkle tree.
type MerkleRoot [message.MerkleNodeBytes]byte

// MerkleTree verifies DSM-PKR messages against a pre-installed tree
// root.
type MerkleTree struct {
	root MerkleRoot
}

// NewMerkleTree builds a verifier for the given tree root.
func NewMerkleTree(root MerkleRoot) MerkleTree { return MerkleTree{root: root} }

// Root returns the tree root.
func (t MerkleTree) Root() MerkleRoot { return t.root }

// walk recomputes the tree root from the DSM-PKR leaf and intermediate
// nodes. The low bits of the message ID give the left/right orientation
// at each level.
func (t MerkleTree) walk(pkr message.Pkr) error {
	leaf, ok := pkr.MerkleLeaf()
	if !ok {
		return newError(CodeMalformedBits, "reserved field sizes in DSM-PKR")
	}
	node := sha256.Sum256(leaf)
	id := pkr.MessageID()
	for level := 0; level < message.MerkleTreeDepth; level++ {
		itn := pkr.IntermediateNode(level)
		h := sha256.New()
		if id&1 == 0 {
			h.Write(node[:])
			h.Write(itn)
		} else {
			h.Write(itn)
			h.Write(node[:])
		}
		h.Sum(node[:0])
		id >>= 1
	}
	if node != t.root {
		return newError(CodeMerkleMismatch, "computed root does not match the stored Merkle root")
	}
	return nil
}

// checkPkrPadding verifies P_DP = trunc( SHA-256(root ‖ leaf) ). Alert
// messages have no padding and pass vacuously.
func (t MerkleTree) checkPkrPadding(pkr message.Pkr) bool {
	padding, ok := pkr.Padding()
	if !ok {
		return false
	}
	if len(padding) == 0 {
		return true
	}
	leaf, _ := pkr.MerkleLeaf()
	h := sha256.New()
	h.Write(t.root[:])
	h.Write(leaf)
	sum := h.Sum(nil)
	if len(padding) > len(sum) {
		return false
	}
	for i, b := range padding {
		if sum[i] != b {
			return false
		}
	}
	return true
}

// VerifyPkr authenticates the new public key carried by a DSM-PKR
// message against the Merkle tree and returns it.
func (t MerkleTree) VerifyPkr(pkr message.Pkr) (PublicKey, error) {
	var curve elliptic.Curve
	switch pkr.KeyType() {
	case message.PkrKeyP256:
		curve = elliptic.P256()
	case message.PkrKeyP521:
		curve = elliptic.P521()
	case message.PkrKeyAlert:
		return PublicKey{}, newError(CodeMalformedBits, "DSM-PKR carries an alert, not a key")
	default:
		return PublicKey{}, newError(CodeMalformedBits, "reserved NPKT value")
	}
	if !t.checkPkrPadding(pkr) {
		return PublicKey{}, newError(CodePaddingInvalid, "DSM-PKR padding check failed")
	}
	if err := t.walk(pkr); err != nil {
		return PublicKey{}, err
	}
	point, _ := pkr.NewKey()
	x, y := elliptic.UnmarshalCompressed(curve, point)
	if x == nil {
		return PublicKey{}, newError(CodeUnsupportedCurve, "new public key is not a valid compressed point")
	}
	return PublicKey{
		Key: &ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		ID:  pkr.NewKeyID(),
	}, nil
}

// VerifyAlert authenticates an OSNMA Alert Message (NPKT = 4) against
// the Merkle tree. A nil return means the alert is genuine and the
// receiver must discard all cryptographic material except the Merkle
// tree root.
func (t MerkleTree) VerifyAlert(pkr message.Pkr) error {
	if pkr.KeyType() != message.PkrKeyAlert {
		return newError(CodeMalformedBits, "DSM-PKR is not an alert message")
	}
	return t.walk(pkr)
}
