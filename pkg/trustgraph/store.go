// Package trustgraph owns the mutable authoritative trust-graph state:
// certificates, profiles, key material, and the indices derived from
// them. Every index is recomputable from the certificate and profile
// sets alone, following the invariant that index loss is always
// recoverable — a map-backed table guarded by a single sync.RWMutex.
package trustgraph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/juergengeck/trustcore/pkg/certops"
	"github.com/juergengeck/trustcore/pkg/cryptocap"
	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
)

// ErrStaleProfile is returned by AdmitProfile when the presented profile
// has an older timestamp than the currently admitted version for the
// same ProfileID.
var ErrStaleProfile = errors.New("trustgraph: stale profile")

type keyKindIndex struct {
	kind model.CertKind
	key  hashid.Hash
}

// Store is the trust graph's in-memory authoritative state.
type Store struct {
	mu  sync.RWMutex
	cap cryptocap.Capability
	log *logrus.Logger

	certs          map[hashid.Hash]*model.Certificate
	certsByKeyKind map[keyKindIndex][]hashid.Hash // ordered by Sequence, then CertID

	profilesByID map[hashid.Hash][]*model.Profile // all admitted versions, any order
	latestByID   map[hashid.Hash]*model.Profile    // supersession cache

	keysOfPerson map[hashid.PersonID]map[hashid.Hash]struct{}
	keyMaterial  map[hashid.Hash][]byte

	nextSequence uint64

	// trustCache and rightsCache are owned logically by the chain
	// evaluator and rights engine respectively, but live here because
	// invalidate_caches is a store-wide barrier: every derived cache
	// must be cleared together on any admission.
	trustCache  map[hashid.Hash]model.KeyTrustInfo
	rightsCache map[hashid.PersonID]model.PersonRights
}

// NewStore creates an empty trust graph store.
func NewStore(cap cryptocap.Capability, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		cap:            cap,
		log:            log,
		certs:          make(map[hashid.Hash]*model.Certificate),
		certsByKeyKind: make(map[keyKindIndex][]hashid.Hash),
		profilesByID:   make(map[hashid.Hash][]*model.Profile),
		latestByID:     make(map[hashid.Hash]*model.Profile),
		keysOfPerson:   make(map[hashid.PersonID]map[hashid.Hash]struct{}),
		keyMaterial:    make(map[hashid.Hash][]byte),
		trustCache:     make(map[hashid.Hash]model.KeyTrustInfo),
		rightsCache:    make(map[hashid.PersonID]model.PersonRights),
	}
}

// RegisterKey records the raw public key material for keyID, so the
// chain evaluator and certificate operations can verify signatures
// against it. The core never synthesizes key identity; callers supply
// it, typically from a profile or an out-of-band enrollment step.
func (s *Store) RegisterKey(keyID hashid.Hash, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(raw))
	copy(buf, raw)
	s.keyMaterial[keyID] = buf
}

// AdmitCertificate validates structure and inserts cert. It is
// idempotent on CertID: admitting an already-admitted certificate is a
// no-op returning nil.
func (s *Store) AdmitCertificate(cert *model.Certificate) error {
	if err := certops.ValidateCertificate(s.cap, cert); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.CertID]; exists {
		return nil
	}

	stored := *cert
	stored.Sequence = s.nextSequence
	s.nextSequence++

	if stored.Kind == model.KindTrustKeys {
		endorsed, err := certops.ExtractEndorsedKeyID(&stored)
		if err != nil {
			return fmt.Errorf("trustgraph: %w", err)
		}
		stored.EndorsedKeyID = endorsed
	}
	if stored.Kind == model.KindAffirmation {
		if subjectKeyID, ok, err := certops.ExtractSubjectKeyID(&stored); err != nil {
			return fmt.Errorf("trustgraph: %w", err)
		} else if ok {
			stored.SubjectKeyID = subjectKeyID
		}
	}

	s.certs[stored.CertID] = &stored

	switch stored.Kind {
	case model.KindTrustKeys:
		idx := keyKindIndex{kind: stored.Kind, key: stored.EndorsedKeyID}
		s.certsByKeyKind[idx] = append(s.certsByKeyKind[idx], stored.CertID)
	case model.KindAffirmation:
		if !stored.SubjectKeyID.IsZero() {
			idx := keyKindIndex{kind: stored.Kind, key: stored.SubjectKeyID}
			s.certsByKeyKind[idx] = append(s.certsByKeyKind[idx], stored.CertID)
		}
	}

	s.invalidateCachesLocked()
	s.log.WithFields(logrus.Fields{
		"cert_id": stored.CertID.String(),
		"kind":    stored.Kind.String(),
	}).Debug("certificate admitted")
	return nil
}

// AdmitProfile enforces timestamp-monotone supersession per ProfileID.
func (s *Store) AdmitProfile(p *model.Profile) error {
	if p == nil {
		return errors.New("trustgraph: profile must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.latestByID[p.ProfileID]; ok {
		if p.Timestamp < current.Timestamp {
			return ErrStaleProfile
		}
		if p.Timestamp == current.Timestamp && current.ProfileHash.Equal(p.ProfileHash) {
			return nil
		}
	}

	stored := *p
	s.profilesByID[p.ProfileID] = append(s.profilesByID[p.ProfileID], &stored)

	if current, ok := s.latestByID[p.ProfileID]; !ok || stored.Timestamp >= current.Timestamp {
		s.latestByID[p.ProfileID] = &stored
		s.rebuildKeysOfPersonLocked()
	}

	s.invalidateCachesLocked()
	return nil
}

func (s *Store) rebuildKeysOfPersonLocked() {
	s.keysOfPerson = make(map[hashid.PersonID]map[hashid.Hash]struct{})
	for _, latest := range s.latestByID {
		set := s.keysOfPerson[latest.PersonID]
		if set == nil {
			set = make(map[hashid.Hash]struct{})
			s.keysOfPerson[latest.PersonID] = set
		}
		for _, k := range latest.Keys {
			set[k] = struct{}{}
		}
	}
}

// KeysOf returns keys_of(person_id): the union of profile.keys over
// admitted profiles with PersonID == person, using the latest admitted
// profile for each ProfileID.
func (s *Store) KeysOf(person hashid.PersonID) []hashid.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.keysOfPerson[person]
	out := make([]hashid.Hash, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// CertificatesFor returns the certificates of kind indexed under keyID,
// in admission order, tie-broken by CertID. TrustKeys certificates are
// indexed by endorsed key and Affirmation certificates by subject key;
// the two authority kinds are not indexed, so for them the result is
// always empty.
func (s *Store) CertificatesFor(keyID hashid.Hash, kind model.CertKind) []hashid.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.certsByKeyKind[keyKindIndex{kind: kind, key: keyID}]
	out := make([]hashid.Hash, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := s.certs[out[i]], s.certs[out[j]]
		if ci.Sequence != cj.Sequence {
			return ci.Sequence < cj.Sequence
		}
		return ci.CertID.String() < cj.CertID.String()
	})
	return out
}

// Certificate looks up a certificate by CertID.
func (s *Store) Certificate(certID hashid.Hash) (*model.Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[certID]
	return c, ok
}

// KeyMaterial returns the raw public key bytes registered for keyID.
func (s *Store) KeyMaterial(keyID hashid.Hash) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.keyMaterial[keyID]
	return raw, ok
}

// AllCertificates returns every admitted certificate, in admission
// order. Used by the rights engine and by persistence's save path.
func (s *Store) AllCertificates() []*model.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Certificate, 0, len(s.certs))
	for _, c := range s.certs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// LatestProfile returns the currently-admitted version of profileID.
func (s *Store) LatestProfile(profileID hashid.Hash) (*model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latestByID[profileID]
	return p, ok
}

// AllLatestProfiles returns the latest admitted version of every
// ProfileID.
func (s *Store) AllLatestProfiles() []*model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Profile, 0, len(s.latestByID))
	for _, p := range s.latestByID {
		out = append(out, p)
	}
	return out
}

// InvalidateCaches clears keys_trust_cache and person_rights_map. It
// must be called after any certificate or profile admission; it is also
// exposed directly so a change in the root set can force recomputation.
func (s *Store) InvalidateCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateCachesLocked()
}

func (s *Store) invalidateCachesLocked() {
	s.trustCache = make(map[hashid.Hash]model.KeyTrustInfo)
	s.rightsCache = make(map[hashid.PersonID]model.PersonRights)
}

// CachedTrust and SetCachedTrust are used by the chain evaluator, which
// lives in a separate package but shares the store's cache barrier
// semantics: a cache read or write can never cross an
// InvalidateCaches() call, so both operate under the store's own lock.
func (s *Store) CachedTrust(keyID hashid.Hash) (model.KeyTrustInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.trustCache[keyID]
	return v, ok
}

func (s *Store) SetCachedTrust(info model.KeyTrustInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trustCache[info.KeyID] = info
}

func (s *Store) CachedRights(person hashid.PersonID) (model.PersonRights, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.rightsCache[person]
	return v, ok
}

func (s *Store) SetCachedRights(person hashid.PersonID, rights model.PersonRights) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rightsCache[person] = rights
}

// Capability exposes the store's crypto capability to collaborating
// components in the same dependency tier (chain evaluator, rights
// engine) so they need not be independently wired with one.
func (s *Store) Capability() cryptocap.Capability {
	return s.cap
}
