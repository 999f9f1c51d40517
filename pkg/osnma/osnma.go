// Package osnma implements a receiver-side authenticator for Galileo
// OSNMA (Open Service Navigation Message Authentication).
//
// The Engine is a "black box": the receiver feeds INAV words and OSNMA
// data messages per satellite and subframe, and queries the most recent
// navigation data whose authentication chain — ECDSA signature over the
// TESLA root key or Merkle-tree-anchored public key, TESLA key walk,
// MAC look-up table and tag checks — is complete.
//
// The engine is single-threaded: callers that dispatch from several
// goroutines must serialize access externally. All storage is allocated
// at construction.
package osnma

import (
	"fmt"

	"github.com/navsec/osnma/internal/authentication"
	"github.com/navsec/osnma/internal/log"
	"github.com/navsec/osnma/internal/message"
	"github.com/navsec/osnma/internal/storage"
	"github.com/navsec/osnma/pkg/galileo"
)

// Storage depth in subframes. Slow MAC needs the MACK history to reach
// 11 subframes back and navigation data one further.
const (
	slowMacMackDepth = 12
	slowMacNavDepth  = 13
	fastMackDepth    = 2
	fastNavDepth     = 3

	// slowMacDelay is the number of subframes between a Slow MAC tag
	// and the disclosure of its key.
	slowMacDelay = 11
)

// DefaultTagThreshold is the authentication bit threshold of the
// current service definition. Earlier ICD revisions used 80.
const DefaultTagThreshold = 40

// Config selects the construction-time parameters of an Engine.
type Config struct {
	// PublicKey optionally installs an ECDSA public key as the key in
	// force. Without it, the engine needs a Merkle root to obtain keys
	// from DSM-PKR messages (broadcast every six hours).
	PublicKey *PublicKey
	// MerkleRoot optionally installs the Merkle tree root used to
	// verify DSM-PKR messages.
	MerkleRoot *MerkleRoot
	// MaxSatellites bounds the number of satellites tracked in
	// parallel; 12 or 36. 0 selects 36.
	MaxSatellites int
	// DisableSlowMac turns off ADKD=12 processing and shrinks the
	// storage history accordingly.
	DisableSlowMac bool
	// OnlySlowMac processes nothing but ADKD=12. Receivers with a
	// loose time bound use this mode.
	OnlySlowMac bool
	// TagThreshold overrides the authentication bit threshold.
	// 0 selects DefaultTagThreshold.
	TagThreshold int
}

// Engine is the OSNMA processing black box.
type Engine struct {
	subframe *storage.Subframe
	dsm      *storage.DsmCollector
	mack     *storage.MackStore
	nav      *storage.NavStore

	merkle   *authentication.MerkleTree
	pubkeys  pubkeyStore
	keys     keyStore
	numSats  int
	slowMac  bool
	onlySlow bool
	dontUse  bool
	alerted  bool
	counters map[authentication.Code]uint64
}

// New builds an Engine. At least one of Config.PublicKey and
// Config.MerkleRoot must be set; without both there is nothing to
// anchor trust in.
func New(cfg Config) (*Engine, error) {
	if cfg.PublicKey == nil && cfg.MerkleRoot == nil {
		return nil, fmt.Errorf("osnma: need a public key or a Merkle root")
	}
	numSats := cfg.MaxSatellites
	switch numSats {
	case 0:
		numSats = galileo.NumSvns
	case 12, galileo.NumSvns:
	default:
		return nil, fmt.Errorf("osnma: MaxSatellites must be 12 or 36, got %d", numSats)
	}
	if cfg.DisableSlowMac && cfg.OnlySlowMac {
		return nil, fmt.Errorf("osnma: DisableSlowMac and OnlySlowMac are mutually exclusive")
	}
	threshold := cfg.TagThreshold
	if threshold == 0 {
		threshold = DefaultTagThreshold
	}
	mackDepth, navDepth := slowMacMackDepth, slowMacNavDepth
	if cfg.DisableSlowMac {
		mackDepth, navDepth = fastMackDepth, fastNavDepth
	}
	e := &Engine{
		subframe: storage.NewSubframe(),
		numSats:  numSats,
		slowMac:  !cfg.DisableSlowMac,
		onlySlow: cfg.OnlySlowMac,
		counters: make(map[authentication.Code]uint64),
	}
	e.dsm = storage.NewDsmCollector(e.count)
	e.mack = storage.NewMackStore(numSats, mackDepth)
	e.nav = storage.NewNavStore(numSats, navDepth, uint16(threshold), e.count)
	if cfg.MerkleRoot != nil {
		t := authentication.NewMerkleTree(*cfg.MerkleRoot)
		e.merkle = &t
	}
	if cfg.PublicKey != nil {
		k := *cfg.PublicKey
		e.pubkeys.current = &k
	}
	return e, nil
}

func (e *Engine) count(code authentication.Code) {
	e.counters[code]++
}

func (e *Engine) countErr(err error) {
	if code := authentication.CodeOf(err); code != authentication.CodeNone {
		e.counters[code]++
	}
}

// Counters returns a copy of the error telemetry counters, keyed by
// stable error kind names such as "tag-mismatch".
func (e *Engine) Counters() map[string]uint64 {
	out := make(map[string]uint64, len(e.counters))
	for code, n := range e.counters {
		out[code.String()] = n
	}
	return out
}

// Alerted reports whether a verified OSNMA Alert Message has latched
// the terminal state.
func (e *Engine) Alerted() bool { return e.alerted }

// FeedInav admits the 128-bit data content of an INAV word received
// from svn at gst on the given band. Errors are counted, never
// returned.
func (e *Engine) FeedInav(word []byte, svn galileo.Svn, gst galileo.Gst, band galileo.Band) {
	if !svn.Valid() || len(word) != message.InavWordBytes {
		e.count(authentication.CodeMalformedBits)
		return
	}
	e.nav.FeedInav(word, svn, gst, band)
}

// FeedOsnma admits the 40-bit OSNMA data message of an INAV page
// received from svn at gst. Errors are counted, never returned.
func (e *Engine) FeedOsnma(osnma []byte, svn galileo.Svn, gst galileo.Gst) {
	if !svn.Valid() || len(osnma) != message.OsnmaDataBytes {
		e.count(authentication.CodeMalformedBits)
		return
	}
	allZero := true
	for _, b := range osnma {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		// Satellite does not transmit OSNMA.
		return
	}
	hkroot, mack, sfGst, done := e.subframe.Feed(osnma, svn, gst)
	if done {
		e.processSubframe(hkroot, mack, svn, sfGst)
	}
}

func (e *Engine) processSubframe(hkroot, mack []byte, svn galileo.Svn, gst galileo.Gst) {
	header := message.NmaHeader(hkroot[0])
	status := header.Status()
	e.dontUse = status == message.NmaStatusDontUse || status == message.NmaStatusReserved
	if !e.dontUse && !e.alerted {
		e.mack.Store(mack, svn, gst, status)
	}

	dsmHeader := message.DsmHeader(hkroot[1])
	if dsm, done := e.dsm.Feed(dsmHeader, hkroot[2:], gst); done {
		e.processDsm(dsm, header, gst)
	}

	if !e.alerted {
		e.validateKey(mack, gst)
	}
}

func (e *Engine) processDsm(dsm storage.Dsm, header message.NmaHeader, gst galileo.Gst) {
	switch dsm.Kind {
	case message.DsmKroot:
		e.processKroot(message.NewKroot(dsm.Data), header, gst)
	case message.DsmPkr:
		e.processPkr(message.NewPkr(dsm.Data))
	}
}

func (e *Engine) processKroot(kroot message.Kroot, header message.NmaHeader, gst galileo.Gst) {
	pkid := kroot.PublicKeyID()
	pub, ok := e.pubkeys.applicable(pkid)
	if !ok {
		log.Error("cannot verify KROOT: public key id %d not available", pkid)
		e.count(authentication.CodeUnknownPkid)
		return
	}
	key, err := authentication.VerifyKroot(header, kroot, *pub)
	if err != nil {
		log.Error("could not verify KROOT: %v", err)
		e.countErr(err)
		return
	}
	log.Info("verified KROOT with public key id %d (%v)", pkid, key.Chain())
	e.pubkeys.makeCurrent(pkid)
	e.keys.storeKroot(key, header.ChainID(), gst)
	e.processNmaHeader(header, pkid)
}

// processNmaHeader reacts to the NMA status and CPKS fields of a header
// whose authenticity has just been established through a verified
// DSM-KROOT.
func (e *Engine) processNmaHeader(header message.NmaHeader, pkid uint8) {
	switch header.Status() {
	case message.NmaStatusOperational:
	case message.NmaStatusTest:
		log.Info("NMA status is test")
	case message.NmaStatusReserved:
		log.Error("NMA status has a reserved value; treating as don't use")
	case message.NmaStatusDontUse:
		log.Warning("NMA status is don't use")
		switch header.Cpks() {
		case message.CpksChainRevoked:
			e.keys.revoke(header.ChainID())
		case message.CpksPubkeyRevoked:
			// The revoking KROOT already names the replacement key, so
			// everything older than pkid goes. A public key revocation
			// also changes the chain.
			e.pubkeys.revoke(pkid)
			e.keys.revoke(header.ChainID())
		}
	}
	switch header.Cpks() {
	case message.CpksReserved:
		log.Error("CPKS has a reserved value")
	case message.CpksNominal:
	case message.CpksEndOfChain:
		log.Info("CPKS is end of chain")
	case message.CpksChainRevoked:
		log.Warning("CPKS is chain revoked")
	case message.CpksNewPublicKey:
		log.Info("CPKS is new public key")
	case message.CpksPubkeyRevoked:
		log.Warning("CPKS is public key revoked")
	case message.CpksNewMerkleTree:
		// Swapping the Merkle root requires out-of-band receiver
		// reconfiguration; all that can be done here is report it.
		log.Warning("CPKS is new Merkle tree; reconfiguration required")
	case message.CpksAlertMessage:
		log.Warning("CPKS is alert message")
		e.enterAlert()
	}
}

func (e *Engine) processPkr(pkr message.Pkr) {
	if e.merkle == nil {
		log.Error("cannot verify DSM-PKR: no Merkle tree root loaded")
		e.count(authentication.CodeMerkleMismatch)
		return
	}
	if pkr.KeyType() == message.PkrKeyAlert {
		if err := e.merkle.VerifyAlert(pkr); err != nil {
			log.Error("could not verify OSNMA Alert Message: %v", err)
			e.countErr(err)
			return
		}
		log.Warning("verified OSNMA Alert Message")
		e.enterAlert()
		return
	}
	pub, err := e.merkle.VerifyPkr(pkr)
	if err != nil {
		log.Error("could not verify DSM-PKR: %v", err)
		e.countErr(err)
		return
	}
	log.Info("verified public key id %d from DSM-PKR", pub.ID)
	e.pubkeys.storeNew(pub)
}

// enterAlert latches the terminal state: all cryptographic material
// except the Merkle root is wiped and no further authentications
// happen. Previously authenticated data stays readable.
func (e *Engine) enterAlert() {
	if e.alerted {
		return
	}
	log.Warning("entering alert state; deleting cryptographic material")
	e.alerted = true
	e.pubkeys.wipe()
	e.keys.wipe()
	e.count(authentication.CodeAlertTerminal)
}

// validateKey authenticates the TESLA key disclosed in a MACK message
// against the chain anchor and, on success, drains the tags that key
// unlocks.
func (e *Engine) validateKey(mack []byte, gst galileo.Gst) {
	current, ok := e.keys.currentKey()
	if !ok {
		log.Debug("no TESLA key for the chain in force; cannot validate MACK key")
		return
	}
	chain := current.Chain()
	m := message.NewMack(mack, chain.KeySizeBits(), chain.TagSizeBits)
	newKey := authentication.KeyFromBits(m.Key(), gst, chain)
	delta := current.Gst().SubframesUntil(newKey.Gst())
	switch {
	case delta == 0:
		// Key already authenticated; nothing to do.
	case delta < 0:
		log.Warning("MACK key at %v is older than the current key at %v", gst, current.Gst())
	default:
		validated, err := current.ValidateKey(newKey)
		if err != nil {
			log.Error("TESLA key at %v failed validation: %v", gst, err)
			e.countErr(err)
			return
		}
		log.Info("authenticated TESLA key at %v", gst)
		e.keys.storeKey(validated)
		e.processTags(validated)
	}
}

// processTags pairs MACK messages from the history with the freshly
// authenticated key: the previous subframe for fast MAC and eleven
// subframes back for Slow MAC.
func (e *Engine) processTags(key authentication.Key) {
	if e.dontUse {
		return
	}
	chain := key.Chain()
	gstMack := key.Gst().AddSubframes(-1)
	gstSlow := key.Gst().AddSubframes(-slowMacDelay)

	// The MACSEQ of the Slow MAC subframe was generated with the key
	// disclosed right after it, which may belong to the previous chain
	// around a renewal.
	var slowKey *authentication.Key
	if e.slowMac {
		gstSlowKey := key.Gst().AddSubframes(-slowMacDelay + 1)
		if anchor, ok := e.keys.keyPastChain(gstSlowKey); ok {
			if d := gstSlowKey.SubframesUntil(anchor.Gst()); d >= 0 {
				k := anchor.Derive(d)
				slowKey = &k
			}
		}
	}

	for n := 1; n <= galileo.NumSvns; n++ {
		svn := galileo.Svn(n)
		if !e.onlySlow {
			if mack, status, ok := e.mack.Get(svn, gstMack); ok {
				m := message.NewMack(mack, chain.KeySizeBits(), chain.TagSizeBits)
				if err := key.ValidateMack(m, svn, gstMack); err != nil {
					log.Error("MACK of %v at %v invalid: %v", svn, gstMack, err)
					e.countErr(err)
				} else {
					e.nav.ProcessMack(m, key, svn, gstMack, status)
				}
			}
		}
		if slowKey != nil {
			if mack, status, ok := e.mack.Get(svn, gstSlow); ok {
				m := message.NewMack(mack, chain.KeySizeBits(), chain.TagSizeBits)
				if err := slowKey.ValidateMack(m, svn, gstSlow); err != nil {
					log.Error("Slow MAC MACK of %v at %v invalid: %v", svn, gstSlow, err)
					e.countErr(err)
				} else {
					e.nav.ProcessMackSlow(m, key, svn, gstSlow, status)
				}
			}
		}
	}
}

// CedAndStatus returns the most recent authenticated ephemeris, clock
// and health data (ADKD=0/12) for svn. Nothing is returned while the
// NMA status is "don't use".
func (e *Engine) CedAndStatus(svn galileo.Svn) (storage.NavData, bool) {
	if e.dontUse {
		return storage.NavData{}, false
	}
	return e.nav.CedAndStatus(svn)
}

// TimingParameters returns the most recent authenticated timing data
// (ADKD=4) for svn.
func (e *Engine) TimingParameters(svn galileo.Svn) (storage.NavData, bool) {
	if e.dontUse {
		return storage.NavData{}, false
	}
	return e.nav.TimingParameters(svn)
}

// Authenticated answers the generic query form: authenticated data of
// the given kind for the satellite prnd. ADKD=0 and ADKD=12 share the
// ephemeris answer; ADKD=4 returns timing data.
func (e *Engine) Authenticated(adkd galileo.Adkd, prnd galileo.Svn) (storage.NavData, bool) {
	switch adkd {
	case galileo.AdkdCed, galileo.AdkdSlowMac:
		return e.CedAndStatus(prnd)
	case galileo.AdkdTiming:
		return e.TimingParameters(prnd)
	}
	return storage.NavData{}, false
}

// AuthenticatedTiming returns authenticated timing parameters from any
// satellite, preferring the most recently authenticated.
func (e *Engine) AuthenticatedTiming() (storage.NavData, bool) {
	var best storage.NavData
	found := false
	for n := 1; n <= galileo.NumSvns; n++ {
		if d, ok := e.TimingParameters(galileo.Svn(n)); ok {
			if !found || best.AuthGst.Before(d.AuthGst) {
				best = d
				found = true
			}
		}
	}
	return best, found
}
