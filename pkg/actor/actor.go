// Package actor owns the trust core's mutable state and serializes
// every entry point — certificate and profile admission, trust queries,
// rights queries, signature verification, issuance, and persistence —
// through a single logical worker, matching §5's scheduling model. It
// is also the wiring point for the chain evaluator and rights engine's
// mutual dependency: both are constructed with a nil checker and
// connected to each other immediately afterward.
package actor

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/juergengeck/trustcore/pkg/certops"
	"github.com/juergengeck/trustcore/pkg/chainverify"
	"github.com/juergengeck/trustcore/pkg/cryptocap"
	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/persistence"
	"github.com/juergengeck/trustcore/pkg/rights"
	"github.com/juergengeck/trustcore/pkg/rootprovider"
	"github.com/juergengeck/trustcore/pkg/sigverify"
	"github.com/juergengeck/trustcore/pkg/trustgraph"
)

// Config configures the actor's job queue depth, the only tunable the
// scheduling model exposes.
type Config struct {
	QueueDepth int
}

// Actor is the trust core's single externally visible handle, created
// at node init and shut down by the node's task supervisor, per §9's
// "singletons re-architected as an actor owning the core state."
type Actor struct {
	queue     *singleWorkerQueue
	store     *trustgraph.Store
	evaluator *chainverify.Evaluator
	rights    *rights.Engine
	verifier  *sigverify.Verifier
	cap       cryptocap.Capability
	log       *logrus.Logger
}

// New constructs the trust graph store, chain evaluator, rights engine,
// and signature verifier, and wires the evaluator and rights engine
// into each other. roots is shared by the evaluator and the rights
// engine; callers invalidate the actor's caches after changing it.
func New(cap cryptocap.Capability, roots rootprovider.Provider, config Config, log *logrus.Logger) *Actor {
	if log == nil {
		log = logrus.New()
	}

	store := trustgraph.NewStore(cap, log)
	evaluator := chainverify.New(store, roots, cap, log)
	rightsEngine := rights.New(store, roots)
	evaluator.SetRightsChecker(rightsEngine)
	rightsEngine.SetTrustChecker(evaluator)
	verifier := sigverify.New(cap, store, evaluator)

	return &Actor{
		queue:     newSingleWorkerQueue(config.QueueDepth),
		store:     store,
		evaluator: evaluator,
		rights:    rightsEngine,
		verifier:  verifier,
		cap:       cap,
		log:       log,
	}
}

// Close stops the actor's worker. No further calls may be submitted
// afterward.
func (a *Actor) Close() {
	a.queue.Close()
}

// AdmitCertificate validates and inserts cert, invalidating derived
// caches on success.
func (a *Actor) AdmitCertificate(cert *model.Certificate) error {
	var err error
	a.queue.submit(func() { err = a.store.AdmitCertificate(cert) })
	return err
}

// AdmitProfile enforces timestamp-monotone supersession and inserts p.
func (a *Actor) AdmitProfile(p *model.Profile) error {
	var err error
	a.queue.submit(func() { err = a.store.AdmitProfile(p) })
	return err
}

// RegisterKey records raw public key material for keyID.
func (a *Actor) RegisterKey(keyID hashid.Hash, raw []byte) {
	a.queue.submit(func() { a.store.RegisterKey(keyID, raw) })
}

// IsKeyTrusted runs the chain evaluator against the current admitted
// state and root set.
func (a *Actor) IsKeyTrusted(keyID hashid.Hash) model.KeyTrustInfo {
	var info model.KeyTrustInfo
	a.queue.submit(func() { info = a.evaluator.IsKeyTrusted(keyID) })
	return info
}

// Rights returns person's derived endorsement capabilities.
func (a *Actor) Rights(person hashid.PersonID) model.PersonRights {
	var r model.PersonRights
	a.queue.submit(func() { r = a.rights.Rights(person) })
	return r
}

// Verify resolves artifact's claimed signer to a trusted key, if any.
func (a *Actor) Verify(artifact sigverify.SignedArtifact) (model.KeyTrustInfo, bool) {
	var info model.KeyTrustInfo
	var ok bool
	a.queue.submit(func() { info, ok = a.verifier.Verify(artifact) })
	return info, ok
}

// Certify issues a new locally-signed certificate of kind over payload.
func (a *Actor) Certify(kind model.CertKind, payload []byte, timestamp uint64) (*model.Certificate, error) {
	var cert *model.Certificate
	var err error
	a.queue.submit(func() { cert, err = certops.Certify(a.cap, kind, payload, timestamp) })
	return cert, err
}

// IsCertifiedBy reports whether subjectKeyID carries a trusted
// certificate of kind issued by issuer.
func (a *Actor) IsCertifiedBy(subjectKeyID hashid.Hash, kind model.CertKind, issuer hashid.PersonID) bool {
	var result bool
	a.queue.submit(func() {
		result = certops.IsCertifiedBy(a.store, a.evaluator, a.cap, subjectKeyID, kind, issuer)
	})
	return result
}

// InvalidateCaches clears the trust and rights caches, for use after an
// external change to the root set.
func (a *Actor) InvalidateCaches() {
	a.queue.submit(func() { a.store.InvalidateCaches() })
}

// Save persists every admitted certificate, the latest version of every
// profile, and the current rights aggregate of every known person
// through dst.
func (a *Actor) Save(dst *persistence.Store) error {
	var err error
	a.queue.submit(func() {
		for _, c := range a.store.AllCertificates() {
			if e := dst.SaveCertificate(c); e != nil {
				err = e
				return
			}
		}
		profiles := a.store.AllLatestProfiles()
		for _, p := range profiles {
			if e := dst.SaveProfile(p); e != nil {
				err = e
				return
			}
		}
		seen := make(map[hashid.PersonID]struct{}, len(profiles))
		for _, p := range profiles {
			if _, ok := seen[p.PersonID]; ok {
				continue
			}
			seen[p.PersonID] = struct{}{}
			if e := dst.SaveRights(p.PersonID, a.rights.Rights(p.PersonID)); e != nil {
				err = e
				return
			}
		}
	})
	return err
}

// ExportSnapshot streams every admitted certificate and profile through
// w, optionally xz-compressed, for transfer to another node.
func (a *Actor) ExportSnapshot(w io.Writer, compress bool) error {
	var err error
	a.queue.submit(func() { err = persistence.ExportSnapshot(a.store, w, compress) })
	return err
}

// ImportSnapshot admits every certificate and profile read from r,
// produced by ExportSnapshot, and invalidates derived caches once done.
func (a *Actor) ImportSnapshot(r io.Reader, compressed bool) (persistence.LoadResult, error) {
	var result persistence.LoadResult
	var err error
	a.queue.submit(func() { result, err = persistence.ImportSnapshot(a.store, r, compressed) })
	return result, err
}

// Load rebuilds the actor's trust graph from src: re-runs store-local
// invariants via AdmitCertificate/AdmitProfile and invalidates caches
// once loading completes.
func (a *Actor) Load(src *persistence.Store) (persistence.LoadResult, error) {
	var result persistence.LoadResult
	var err error
	a.queue.submit(func() {
		result, err = persistence.LoadAll(src, a.store)
	})
	return result, err
}

// Store exposes the underlying trust graph store for read-only callers
// such as persistence export that do not mutate state and therefore do
// not need FIFO serialization through the actor's queue.
func (a *Actor) Store() *trustgraph.Store {
	return a.store
}
