package authentication

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"

	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

// PublicKey is an ECDSA verification key together with its OSNMA public
// key ID. Curves P-256 and P-521 are admissible.
type PublicKey struct {
	Key *ecdsa.PublicKey
	ID  uint8
}

// VerifyKroot checks a reassembled DSM-KROOT message against pub: chain
// parameter extraction, padding and the ECDSA signature over the
// NMA-header-prefixed message. On success it returns the authenticated
// TESLA root key, positioned one subframe before the chain start.
func VerifyKroot(header message.NmaHeader, kroot message.Kroot, pub PublicKey) (Key, error) {
	chain, err := ChainFromKroot(header, kroot)
	if err != nil {
		return Key{}, err
	}
	msg, ok := kroot.SignatureMessage(header)
	if !ok {
		return Key{}, newError(CodeMalformedBits, "cannot frame DSM-KROOT signature message")
	}
	sig, ok := kroot.Signature()
	if !ok {
		return Key{}, newError(CodeMalformedBits, "cannot locate DSM-KROOT signature")
	}
	p256 := len(sig) == message.SignatureSizeP256
	switch {
	case p256 && pub.Key.Curve != elliptic.P256():
		return Key{}, newError(CodeUnsupportedCurve, "P-256 signature but public key is not P-256")
	case !p256 && pub.Key.Curve != elliptic.P521():
		return Key{}, newError(CodeUnsupportedCurve, "P-521 signature but public key is not P-521")
	}
	if !checkPadding(kroot, msg, sig) {
		return Key{}, newError(CodePaddingInvalid, "DSM-KROOT padding check failed")
	}
	var digest []byte
	if p256 {
		d := sha256.Sum256(msg)
		digest = d[:]
	} else {
		d := sha512.Sum512(msg)
		digest = d[:]
	}
	half := len(sig) / 2
	r := new(big.Int).SetBytes(sig[:half])
	s := new(big.Int).SetBytes(sig[half:])
	if !ecdsa.Verify(pub.Key, digest, r, s) {
		return Key{}, newError(CodeSignatureInvalid, "DSM-KROOT ECDSA signature invalid")
	}
	root, _ := kroot.RootKey()
	gst, err2 := galileo.NewGst(kroot.KrootWn(), uint32(kroot.KrootTowh())*3600)
	if err2 != nil {
		return Key{}, errorf(CodeMalformedBits, "KROOT applicability time: %v", err2)
	}
	// The root key belongs to the subframe before the start of
	// applicability.
	return KeyFromBytes(root, gst.AddSeconds(-galileo.SecondsPerSubframe), chain), nil
}

// checkPadding verifies P_DK = trunc( SHA-256(message ‖ signature) ).
func checkPadding(kroot message.Kroot, msg, sig []byte) bool {
	padding, ok := kroot.Padding()
	if !ok {
		return false
	}
	h := sha256.New()
	h.Write(msg)
	h.Write(sig)
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
