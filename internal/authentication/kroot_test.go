package authentication

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"testing"

	"github.com/navsec/osnma/internal/bitfield"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/pkg/galileo"
)

// buildKroot assembles and signs a DSM-KROOT message for the given
// chain parameters and root key.
func buildKroot(t *testing.T, header message.NmaHeader, priv *ecdsa.PrivateKey,
	pkid uint8, kroot []byte, wn uint16, towh uint8, alpha uint64, maclt uint8) []byte {
	t.Helper()
	sigSize := message.SignatureSizeP256
	if priv.Curve == elliptic.P521() {
		sigSize = message.SignatureSizeP521
	}
	fixed := 13 + len(kroot) + sigSize
	blocks := (fixed + message.DsmBlockBytes - 1) / message.DsmBlockBytes
	data := make([]byte, blocks*message.DsmBlockBytes)
	nb := blocks - 6
	bitfield.PutUint(data, 0, 4, uint64(nb))
	bitfield.PutUint(data, 4, 8, uint64(pkid))
	bitfield.PutUint(data, 8, 10, uint64(header.ChainID()))
	bitfield.PutUint(data, 12, 14, 0) // HF = SHA-256
	bitfield.PutUint(data, 14, 16, 0) // MF = HMAC-SHA-256
	var ks uint64
	switch len(kroot) * 8 {
	case 128:
		ks = 4
	case 256:
		ks = 8
	default:
		t.Fatalf("unsupported test key size %d", len(kroot)*8)
	}
	bitfield.PutUint(data, 16, 20, ks)
	bitfield.PutUint(data, 20, 24, 9) // TS = 40 bits
	bitfield.PutUint(data, 24, 32, uint64(maclt))
	bitfield.PutUint(data, 36, 48, uint64(wn))
	bitfield.PutUint(data, 48, 56, uint64(towh))
	bitfield.PutUint(data, 56, 104, alpha)
	copy(data[13:], kroot)

	msg := make([]byte, 13+len(kroot))
	msg[0] = byte(header)
	copy(msg[1:], data[1:13+len(kroot)])
	var digest []byte
	if priv.Curve == elliptic.P256() {
		d := sha256.Sum256(msg)
		digest = d[:]
	} else {
		d := sha512.Sum512(msg)
		digest = d[:]
	}
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		t.Fatal(err)
	}
	sig := make([]byte, sigSize)
	r.FillBytes(sig[:sigSize/2])
	s.FillBytes(sig[sigSize/2:])
	copy(data[13+len(kroot):], sig)

	h := sha256.New()
	h.Write(msg)
	h.Write(sig)
	sum := h.Sum(nil)
	copy(data[13+len(kroot)+sigSize:], sum)
	return data
}

func TestVerifyKroot(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	header := message.NmaHeader(0x82) // operational, CID 0, nominal
	rootKey := make([]byte, 16)
	for i := range rootKey {
		rootKey[i] = byte(i * 7)
	}
	data := buildKroot(t, header, priv, 3, rootKey, 1248, 10, 0x25d3964da3a2, 33)
	key, err := VerifyKroot(header, message.NewKroot(data), PublicKey{Key: &priv.PublicKey, ID: 3})
	if err != nil {
		t.Fatalf("VerifyKroot failed: %v", err)
	}
	if key.Gst() != galileo.MustGst(1248, 10*3600-30) {
		t.Errorf("root key GST = %v", key.Gst())
	}
	chain := key.Chain()
	if chain.ID != 0 || chain.KeySizeBytes != 16 || chain.TagSizeBits != 40 || chain.Maclt != 33 {
		t.Errorf("chain = %+v", chain)
	}
	if chain.Status != ChainOperational {
		t.Errorf("chain status = %v", chain.Status)
	}
}

func TestVerifyKrootP521(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	header := message.NmaHeader(0x82)
	rootKey := make([]byte, 32)
	data := buildKroot(t, header, priv, 9, rootKey, 1260, 18, 1, 27)
	if _, err := VerifyKroot(header, message.NewKroot(data), PublicKey{Key: &priv.PublicKey, ID: 9}); err != nil {
		t.Fatalf("VerifyKroot with P-521 failed: %v", err)
	}
}

func TestVerifyKrootBadSignature(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	header := message.NmaHeader(0x82)
	rootKey := make([]byte, 16)
	data := buildKroot(t, header, priv, 3, rootKey, 1248, 10, 1, 33)
	// Corrupt one KROOT byte: both the padding and the signature
	// break, and the padding is checked first.
	data[13] ^= 1
	_, err = VerifyKroot(header, message.NewKroot(data), PublicKey{Key: &priv.PublicKey, ID: 3})
	if CodeOf(err) != CodePaddingInvalid {
		t.Errorf("err = %v, want padding-invalid", err)
	}

	// Corrupt the signature but fix the padding up: the ECDSA check
	// itself must now fail.
	data = buildKroot(t, header, priv, 3, rootKey, 1248, 10, 1, 33)
	data[13+16] ^= 1
	kroot := message.NewKroot(data)
	msg, _ := kroot.SignatureMessage(header)
	sig, _ := kroot.Signature()
	h := sha256.New()
	h.Write(msg)
	h.Write(sig)
	copy(data[13+16+len(sig):], h.Sum(nil))
	_, err = VerifyKroot(header, kroot, PublicKey{Key: &priv.PublicKey, ID: 3})
	if CodeOf(err) != CodeSignatureInvalid {
		t.Errorf("err = %v, want signature-invalid", err)
	}
}

func TestVerifyKrootCurveMismatch(t *testing.T) {
	priv256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	priv521, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	header := message.NmaHeader(0x82)
	rootKey := make([]byte, 16)
	data := buildKroot(t, header, priv256, 3, rootKey, 1248, 10, 1, 33)
	_, err = VerifyKroot(header, message.NewKroot(data), PublicKey{Key: &priv521.PublicKey, ID: 3})
	if CodeOf(err) != CodeUnsupportedCurve {
		t.Errorf("err = %v, want unsupported-curve", err)
	}
}
