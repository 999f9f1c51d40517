package authentication

import "fmt"

// Code classifies a verification failure. Codes are stable and are used
// by the engine as telemetry counters; they never abort processing.
type Code int

const (
	CodeNone Code = iota
	// CodeMalformedBits is raised for buffers of the wrong length or
	// reserved bit patterns where the ICD forbids them.
	CodeMalformedBits
	// CodeUnknownPkid is raised when a DSM-KROOT names a public key
	// that is not in the store.
	CodeUnknownPkid
	// CodeUnsupportedCurve is raised when the signature length and the
	// selected public key disagree, or the curve is not P-256/P-521.
	CodeUnsupportedCurve
	// CodeUnsupportedHash is raised for reserved HF values.
	CodeUnsupportedHash
	// CodeUnsupportedMac is raised for reserved MF values or TESLA key
	// sizes the MAC function cannot use.
	CodeUnsupportedMac
	// CodeDsmIncomplete is raised when a partial DSM is evicted.
	CodeDsmIncomplete
	// CodeSignatureInvalid is raised on ECDSA verification failure.
	CodeSignatureInvalid
	// CodePaddingInvalid is raised when a DSM padding check fails.
	CodePaddingInvalid
	// CodeMerkleMismatch is raised when a DSM-PKR hash chain does not
	// end at the stored Merkle tree root.
	CodeMerkleMismatch
	// CodeChainBroken is raised when a disclosed TESLA key cannot be
	// walked back to the authenticated anchor.
	CodeChainBroken
	// CodeMacseqInvalid is raised when the MACSEQ check of a MACK
	// message fails, invalidating all of its tags.
	CodeMacseqInvalid
	// CodeTagMismatch is raised when a tag MAC does not match.
	CodeTagMismatch
	// CodeMissingNavData is raised when a tag arrives for navigation
	// data that is not in the store.
	CodeMissingNavData
	// CodeStorageEvicted counts benign evictions of stored data.
	CodeStorageEvicted
	// CodeAlertTerminal is raised once when a verified Alert Message
	// latches the terminal state.
	CodeAlertTerminal
)

var codeNames = map[Code]string{
	CodeMalformedBits:    "malformed-bits",
	CodeUnknownPkid:      "unknown-pkid",
	CodeUnsupportedCurve: "unsupported-curve",
	CodeUnsupportedHash:  "unsupported-hash",
	CodeUnsupportedMac:   "unsupported-mac",
	CodeDsmIncomplete:    "dsm-incomplete-evicted",
	CodeSignatureInvalid: "signature-invalid",
	CodePaddingInvalid:   "padding-invalid",
	CodeMerkleMismatch:   "merkle-mismatch",
	CodeChainBroken:      "tesla-chain-broken",
	CodeMacseqInvalid:    "macseq-invalid",
	CodeTagMismatch:      "tag-mismatch",
	CodeMissingNavData:   "missing-navblock",
	CodeStorageEvicted:   "storage-evicted",
	CodeAlertTerminal:    "alert-terminal",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is a verification failure with a classification code.
type Error struct {
	Code Code
	Info string
}

func newError(code Code, info string) error {
	return &Error{Code: code, Info: info}
}

func errorf(code Code, format string, a ...interface{}) error {
	return &Error{Code: code, Info: fmt.Sprintf(format, a...)}
}

func (e *Error) Error() string {
	if e.Info == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Info)
}

// CodeOf extracts the classification code of err, or CodeNone if err is
// nil or untyped.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeNone
}
