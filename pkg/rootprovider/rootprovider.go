// Package rootprovider defines the root-set provider contract and a
// static in-memory implementation suitable for a single-owner node. The
// chain evaluator accepts the root set as input; it never hard-codes
// identities, following §6's external-interface requirement.
package rootprovider

import (
	"sync"

	"github.com/juergengeck/trustcore/pkg/hashid"
)

// Mode selects which root scope a caller wants.
type Mode int

const (
	// ModeMainIdentity returns only the node's own primary root key.
	ModeMainIdentity Mode = iota
	// ModeAll returns every key this node treats as a root, including
	// any additional roots admitted for multi-owner trust graphs.
	ModeAll
)

// Provider supplies the current root set. Callers must call
// trustgraph.Store.InvalidateCaches() after any change to the set a
// Provider returns — the evaluator's cached verdicts persist until
// InvalidateCaches and do not notice a root-set change on their own.
type Provider interface {
	CurrentRoots(mode Mode) (map[hashid.Hash]struct{}, error)
}

// StaticProvider holds an explicit, externally managed root set. It is
// the trust-core equivalent of the original's "main identity's keys"
// root-key accessor, generalized to support more than one root key.
type StaticProvider struct {
	mu            sync.RWMutex
	mainIdentity  map[hashid.Hash]struct{}
	allRoots      map[hashid.Hash]struct{}
}

// NewStaticProvider creates a StaticProvider. mainIdentity must be a
// subset of allRoots; callers construct it that way by convention, it is
// not enforced here.
func NewStaticProvider(mainIdentity, allRoots []hashid.Hash) *StaticProvider {
	p := &StaticProvider{
		mainIdentity: make(map[hashid.Hash]struct{}, len(mainIdentity)),
		allRoots:     make(map[hashid.Hash]struct{}, len(allRoots)),
	}
	for _, k := range mainIdentity {
		p.mainIdentity[k] = struct{}{}
	}
	for _, k := range allRoots {
		p.allRoots[k] = struct{}{}
	}
	return p
}

// CurrentRoots returns a copy of the requested root set.
func (p *StaticProvider) CurrentRoots(mode Mode) (map[hashid.Hash]struct{}, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	source := p.allRoots
	if mode == ModeMainIdentity {
		source = p.mainIdentity
	}
	out := make(map[hashid.Hash]struct{}, len(source))
	for k := range source {
		out[k] = struct{}{}
	}
	return out, nil
}

// AddRoot adds key to both the main-identity and all-roots sets.
func (p *StaticProvider) AddRoot(key hashid.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mainIdentity[key] = struct{}{}
	p.allRoots[key] = struct{}{}
}

// AddAdditionalRoot adds key to the all-roots set only, leaving the
// main-identity root untouched.
func (p *StaticProvider) AddAdditionalRoot(key hashid.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allRoots[key] = struct{}{}
}
