// Package rights derives the per-person endorsement-authority capability
// map from admitted RightToDeclareTrustedKeysForEverybody and
// RightToDeclareTrustedKeysForSelf certificates. It is re-entrant-safe:
// Rights reads the trust graph store without mutating it, and its result
// is cached by the store under the same invalidate_caches() barrier that
// covers the chain evaluator's verdicts.
package rights

import (
	"github.com/juergengeck/trustcore/pkg/certops"
	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/rootprovider"
	"github.com/juergengeck/trustcore/pkg/trustgraph"
	"github.com/juergengeck/trustcore/pkg/wire"
)

// TrustChecker is the narrow read surface of the chain evaluator the
// rights engine needs: whether a grantor's key is currently trusted.
// Defined here rather than imported from chainverify to avoid the
// import cycle the two components' mutual dependency would otherwise
// create; *chainverify.Evaluator satisfies this interface structurally.
type TrustChecker interface {
	IsKeyTrusted(keyID hashid.Hash) model.KeyTrustInfo
}

// Engine derives PersonRights on demand from a trust graph store.
type Engine struct {
	store *trustgraph.Store
	trust TrustChecker
	roots rootprovider.Provider

	// computing tracks persons whose top-level Rights call is still in
	// progress, mirroring the evaluator's own in-flight guard: resolving
	// a grantor's trust can call back into Rights for the very person
	// already being resolved (an authority grant whose own validity
	// loops back through the grantee). See chainverify.Evaluator.computing.
	computing map[hashid.PersonID]struct{}
}

// New creates a rights Engine. trust may be nil initially and wired
// later via SetTrustChecker.
func New(store *trustgraph.Store, roots rootprovider.Provider) *Engine {
	return &Engine{store: store, roots: roots}
}

// SetTrustChecker wires the chain evaluator into the engine after both
// have been constructed.
func (e *Engine) SetTrustChecker(tc TrustChecker) {
	e.trust = tc
}

// Rights returns person's derived capability bits, consulting and
// populating the store's rights cache.
func (e *Engine) Rights(person hashid.PersonID) model.PersonRights {
	if cached, ok := e.store.CachedRights(person); ok {
		return cached
	}

	if e.computing == nil {
		e.computing = make(map[hashid.PersonID]struct{})
	}
	if _, inFlight := e.computing[person]; inFlight {
		// Re-entered while person's own rights are still being resolved.
		// The outer call owns the real answer; report no rights here
		// without caching, same as the evaluator's own in-flight guard.
		return model.PersonRights{}
	}
	e.computing[person] = struct{}{}
	defer delete(e.computing, person)

	rights := e.computeRights(person)
	e.store.SetCachedRights(person, rights)
	return rights
}

func (e *Engine) computeRights(person hashid.PersonID) model.PersonRights {
	if e.ownsRootKey(person) {
		rights := model.PersonRights{MayEndorseForEverybody: true, MayEndorseForSelf: true}
		return rights
	}

	return model.PersonRights{
		MayEndorseForEverybody: e.hasGrantedAuthority(person, model.KindRightToDeclareTrustedKeysForEverybody),
		MayEndorseForSelf:      e.hasGrantedAuthority(person, model.KindRightToDeclareTrustedKeysForSelf),
	}
}

func (e *Engine) ownsRootKey(person hashid.PersonID) bool {
	roots, err := e.roots.CurrentRoots(rootprovider.ModeAll)
	if err != nil {
		return false
	}
	for _, k := range e.store.KeysOf(person) {
		if _, isRoot := roots[k]; isRoot {
			return true
		}
	}
	return false
}

// hasGrantedAuthority reports whether any admitted certificate of kind
// names person as grantee, signed by a grantor q where some key of q is
// trusted by the chain evaluator.
func (e *Engine) hasGrantedAuthority(person hashid.PersonID, kind model.CertKind) bool {
	if e.trust == nil {
		return false
	}
	for _, cert := range e.store.AllCertificates() {
		if cert.Kind != kind {
			continue
		}
		if err := certops.ValidateCertificate(e.store.Capability(), cert); err != nil {
			continue
		}
		payload, err := wire.DecodeAuthorityPayload(cert.Payload)
		if err != nil || payload.GranteePersonID != person {
			continue
		}
		if e.grantorHasTrustedKey(payload.GrantorPersonID, cert) {
			return true
		}
	}
	return false
}

func (e *Engine) grantorHasTrustedKey(grantor hashid.PersonID, cert *model.Certificate) bool {
	for _, candidateKey := range e.store.KeysOf(grantor) {
		material, ok := e.store.KeyMaterial(candidateKey)
		if !ok {
			continue
		}
		if !e.store.Capability().Verify(cert.Payload, cert.Signature, material) {
			continue
		}
		if e.trust.IsKeyTrusted(candidateKey).Trusted {
			return true
		}
	}
	return false
}
