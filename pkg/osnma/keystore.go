package osnma

import (
	"github.com/navsec/osnma/internal/authentication"
	"github.com/navsec/osnma/internal/log"
	"github.com/navsec/osnma/pkg/galileo"
)

// pubkeyStore holds at most two ECDSA public keys: the key in force and
// optionally the next one, verified from a DSM-PKR ahead of a renewal.
type pubkeyStore struct {
	current *authentication.PublicKey
	next    *authentication.PublicKey
}

// applicable selects the stored key with the given PKID, if any.
func (s *pubkeyStore) applicable(pkid uint8) (*authentication.PublicKey, bool) {
	if s.current != nil && s.current.ID == pkid {
		return s.current, true
	}
	if s.next != nil && s.next.ID == pkid {
		log.Info("selecting next public key to authenticate KROOT")
		return s.next, true
	}
	return nil, false
}

// makeCurrent promotes the key with the given PKID to current. The key
// must be in the store; this is called after it has verified a KROOT.
func (s *pubkeyStore) makeCurrent(pkid uint8) {
	if s.current != nil && s.current.ID == pkid {
		return
	}
	if s.next != nil && s.next.ID == pkid {
		s.current = s.next
		s.next = nil
	}
}

// storeNew admits a freshly verified public key. PKIDs only move
// forward; keys older than the current one are discarded.
func (s *pubkeyStore) storeNew(pub authentication.PublicKey) {
	if s.current == nil {
		s.current = &pub
		return
	}
	switch {
	case pub.ID < s.current.ID:
		log.Error("public key id %d is older than current id %d, discarding", pub.ID, s.current.ID)
	case pub.ID == s.current.ID:
		// Already stored.
	case s.next == nil || pub.ID > s.next.ID:
		if s.next != nil {
			log.Warning("overwriting next public key id %d with id %d", s.next.ID, pub.ID)
		}
		s.next = &pub
	case pub.ID < s.next.ID:
		log.Error("public key id %d is older than next id %d, discarding", pub.ID, s.next.ID)
	}
}

// revoke drops every key with a PKID below the one named by a
// revocation.
func (s *pubkeyStore) revoke(newPkid uint8) {
	if s.current != nil && s.current.ID < newPkid {
		log.Warning("revoking current public key id %d", s.current.ID)
		s.current = nil
	}
	if s.next != nil && s.next.ID < newPkid {
		log.Warning("revoking next public key id %d", s.next.ID)
		s.next = nil
	}
}

func (s *pubkeyStore) wipe() {
	s.current = nil
	s.next = nil
}

// chainInForce records which chain ID the NMA header currently names,
// and when it displaced a different chain (used for Slow MAC checks
// that straddle a chain renewal).
type chainInForce struct {
	cid            uint8
	changedAt      galileo.Gst
	changedAtValid bool
	valid          bool
}

// keyStore holds the newest authenticated TESLA key of up to two
// chains: the chain in force and, around a renewal, its successor.
type keyStore struct {
	keys  [2]*authentication.Key
	force chainInForce
}

// storeKroot admits a root key verified from a DSM-KROOT and updates
// the chain in force from the (validated) NMA header.
func (s *keyStore) storeKroot(key authentication.Key, cid uint8, gst galileo.Gst) {
	kid := key.Chain().ID
	switch {
	case s.keys[0] != nil && s.keys[0].Chain().ID == kid:
		// A key for this chain is already present; the live key is
		// never replaced by its own KROOT.
	case s.keys[1] != nil && s.keys[1].Chain().ID == kid:
	case s.keys[0] == nil:
		k := key
		s.keys[0] = &k
	case s.keys[1] == nil:
		k := key
		s.keys[1] = &k
	default:
		// Both slots occupied by other chains: keep the slot of the
		// chain in force and overwrite the other.
		k := key
		if s.keys[0].Chain().ID == cid {
			s.keys[1] = &k
		} else {
			s.keys[0] = &k
		}
	}
	if s.force.valid && s.force.cid != cid {
		s.force.changedAt = gst
		s.force.changedAtValid = true
	}
	s.force.cid = cid
	s.force.valid = true
}

// storeKey replaces the stored key of its chain with a newer
// authenticated key.
func (s *keyStore) storeKey(key authentication.Key) {
	id := key.Chain().ID
	for i := range s.keys {
		if s.keys[i] != nil && s.keys[i].Chain().ID == id {
			k := key
			s.keys[i] = &k
			return
		}
	}
}

// currentKey returns the newest authenticated key of the chain in
// force.
func (s *keyStore) currentKey() (*authentication.Key, bool) {
	if !s.force.valid {
		return nil, false
	}
	for _, k := range s.keys {
		if k != nil && k.Chain().ID == s.force.cid {
			return k, true
		}
	}
	return nil, false
}

// keyPastChain is like currentKey, but returns the key of the previous
// chain when gst falls before the start of applicability of the chain
// in force. Slow MAC checks reach back across a renewal.
func (s *keyStore) keyPastChain(gst galileo.Gst) (*authentication.Key, bool) {
	if !s.force.valid {
		return nil, false
	}
	if s.force.changedAtValid && gst.Before(s.force.changedAt) {
		for _, k := range s.keys {
			if k != nil && k.Chain().ID != s.force.cid {
				return k, true
			}
		}
		return nil, false
	}
	return s.currentKey()
}

// revoke drops the key of the named chain.
func (s *keyStore) revoke(cid uint8) {
	for i, k := range s.keys {
		if k != nil && k.Chain().ID == cid {
			log.Warning("revoking TESLA key of chain %d", cid)
			s.keys[i] = nil
		}
	}
}

func (s *keyStore) wipe() {
	s.keys[0] = nil
	s.keys[1] = nil
	s.force = chainInForce{}
}
