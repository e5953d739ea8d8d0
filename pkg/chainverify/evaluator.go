// Package chainverify implements the chain evaluator: a memoized
// depth-first traversal deciding whether a key is transitively endorsed
// by a root, with cycle detection. It is grounded directly on
// TrustedKeysManager::getKeyTrustInfoDP in the original firmware's
// trusted_keys_manager.cpp, generalized from a single hard-coded root
// key to an externally supplied root set and from a map-based visited
// list to an explicit recursion-stack set.
package chainverify

import (
	"github.com/sirupsen/logrus"

	"github.com/juergengeck/trustcore/pkg/certops"
	"github.com/juergengeck/trustcore/pkg/cryptocap"
	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/rootprovider"
	"github.com/juergengeck/trustcore/pkg/trustgraph"
)

// RightsChecker is the narrow read surface of the rights engine the
// evaluator consults to decide whether a TrustKeys certificate's signer
// may endorse keys belonging to someone other than themselves. Defined
// here, not imported from the rights package, so the two packages can
// depend on each other's behavior without an import cycle — the rights
// engine happens to implement this interface, it never needs to know
// this package exists.
type RightsChecker interface {
	Rights(person hashid.PersonID) model.PersonRights
}

// Evaluator computes is_key_trusted(key_id) against a trust graph store
// and an externally supplied root-set provider.
type Evaluator struct {
	store  *trustgraph.Store
	roots  rootprovider.Provider
	rights RightsChecker
	cap    cryptocap.Capability
	log    *logrus.Logger

	// computing tracks keys whose top-level IsKeyTrusted call is still in
	// progress. A rights lookup triggered from inside that call can hop
	// back into IsKeyTrusted for the same key (the trust graph and the
	// rights graph are mutually recursive); visiting alone cannot catch
	// this because it is scoped to one evaluate() traversal, not to calls
	// that cross the rights boundary and come back in.
	computing map[hashid.Hash]struct{}
}

// New creates an Evaluator. rights may be nil initially and set later
// via SetRightsChecker, accommodating the mutual construction order
// between the chain evaluator and the rights engine.
func New(store *trustgraph.Store, roots rootprovider.Provider, cap cryptocap.Capability, log *logrus.Logger) *Evaluator {
	if log == nil {
		log = logrus.New()
	}
	return &Evaluator{store: store, roots: roots, cap: cap, log: log}
}

// SetRightsChecker wires the rights engine into the evaluator after
// both have been constructed.
func (e *Evaluator) SetRightsChecker(rc RightsChecker) {
	e.rights = rc
}

// IsKeyTrusted decides whether keyID is transitively endorsed by a root,
// memoizing the result in the store's trust cache.
func (e *Evaluator) IsKeyTrusted(keyID hashid.Hash) model.KeyTrustInfo {
	if cached, ok := e.store.CachedTrust(keyID); ok {
		return cached
	}

	if e.computing == nil {
		e.computing = make(map[hashid.Hash]struct{})
	}
	if _, inFlight := e.computing[keyID]; inFlight {
		// Re-entered while keyID's own verdict is still being resolved,
		// via a rights lookup that looped back here. The outer call owns
		// the real answer; this nested one reports untrusted without
		// caching so it never poisons the eventual result.
		return model.KeyTrustInfo{KeyID: keyID, Trusted: false, Reason: model.ReasonNoPath}
	}
	e.computing[keyID] = struct{}{}
	defer delete(e.computing, keyID)

	roots, err := e.roots.CurrentRoots(rootprovider.ModeAll)
	if err != nil {
		info := model.KeyTrustInfo{KeyID: keyID, Trusted: false, Reason: model.ReasonInvalidCertificate}
		e.store.SetCachedTrust(info)
		e.log.WithFields(logrus.Fields{"key_id": keyID.String(), "error": err}).Warn("chainverify: root set unavailable")
		return info
	}

	visiting := map[hashid.Hash]struct{}{keyID: {}}
	info := e.evaluate(keyID, roots, visiting)
	e.store.SetCachedTrust(info)
	e.log.WithFields(logrus.Fields{
		"key_id":  keyID.String(),
		"trusted": info.Trusted,
		"reason":  info.Reason.String(),
	}).Debug("key trust verdict")
	return info
}

func (e *Evaluator) evaluate(keyID hashid.Hash, roots map[hashid.Hash]struct{}, visiting map[hashid.Hash]struct{}) model.KeyTrustInfo {
	if cached, ok := e.store.CachedTrust(keyID); ok {
		return cached
	}
	if _, isRoot := roots[keyID]; isRoot {
		return model.KeyTrustInfo{KeyID: keyID, Trusted: true, Reason: model.ReasonRoot}
	}

	for _, certID := range e.store.CertificatesFor(keyID, model.KindTrustKeys) {
		cert, ok := e.store.Certificate(certID)
		if !ok {
			continue
		}
		if err := certops.ValidateCertificate(e.cap, cert); err != nil {
			continue
		}

		signer, err := certops.SignerOf(cert)
		if err != nil {
			continue
		}

		if !e.signerMayEndorse(signer, keyID) {
			continue
		}

		for _, candidateKey := range e.store.KeysOf(signer) {
			material, ok := e.store.KeyMaterial(candidateKey)
			if !ok {
				continue
			}
			if !e.cap.Verify(cert.Payload, cert.Signature, material) {
				continue
			}

			if _, cyclic := visiting[candidateKey]; cyclic {
				// Cycle breaks are opaque: this branch never produces a
				// trusted verdict through itself but does not poison
				// the others.
				continue
			}

			visiting[candidateKey] = struct{}{}
			recursive := e.evaluate(candidateKey, roots, visiting)
			delete(visiting, candidateKey)

			if recursive.Trusted {
				path := make([]hashid.Hash, 0, len(recursive.Path)+1)
				path = append(path, cert.CertID)
				path = append(path, recursive.Path...)
				return model.KeyTrustInfo{
					KeyID:           keyID,
					Trusted:         true,
					Reason:          model.ReasonEndorsedBy,
					EndorsingCertID: cert.CertID,
					Path:            path,
				}
			}
		}
	}

	return model.KeyTrustInfo{KeyID: keyID, Trusted: false, Reason: model.ReasonNoPath}
}

// signerMayEndorse implements §4.3's semantic consequence: a signer
// without may_endorse_for_everybody may only endorse their own keys.
// endorsedKeyID belongs to the signer when it appears in keys_of(signer)
// — checked directly, so this does not recurse into trust evaluation.
func (e *Evaluator) signerMayEndorse(signer hashid.PersonID, endorsedKeyID hashid.Hash) bool {
	if e.rights == nil {
		// Rights engine not yet wired (construction order, see New's
		// doc comment): fail closed, same as an absent right.
		return false
	}
	rights := e.rights.Rights(signer)
	if rights.MayEndorseForEverybody {
		return true
	}
	if !rights.MayEndorseForSelf {
		return false
	}
	for _, k := range e.store.KeysOf(signer) {
		if k.Equal(endorsedKeyID) {
			return true
		}
	}
	return false
}
