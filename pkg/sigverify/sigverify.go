// Package sigverify resolves a signed artifact's claimed signer to
// candidate keys and delegates the trust decision to the chain
// evaluator. It never short-circuits: it always reaches the evaluator,
// so a trust revocation observed via invalidate_caches is reflected in
// every subsequent Verify call.
package sigverify

import (
	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
)

// CryptoVerifier is the narrow crypto surface Verify needs: checking a
// signature against one candidate key at a time.
type CryptoVerifier interface {
	Verify(payload, signature, publicKey []byte) bool
}

// KeyResolver resolves a claimed signer to the candidate keys that
// identity currently owns, and their raw public key material.
type KeyResolver interface {
	KeysOf(person hashid.PersonID) []hashid.Hash
	KeyMaterial(keyID hashid.Hash) ([]byte, bool)
}

// Evaluator is the narrow read surface of the chain evaluator this
// package consults once a signature has verified under a key.
type Evaluator interface {
	IsKeyTrusted(keyID hashid.Hash) model.KeyTrustInfo
}

// SignedArtifact is anything presented to Verify for signature checking:
// a payload, its signature, and the identity claiming to have signed it.
// Certificates and profile updates are both representable this way.
type SignedArtifact struct {
	ClaimedSigner hashid.PersonID
	Payload       []byte
	Signature     []byte
}

// Verifier wires a crypto capability, a key resolver, and a chain
// evaluator together to implement verify(signed_artifact).
type Verifier struct {
	crypto    CryptoVerifier
	resolver  KeyResolver
	evaluator Evaluator
}

// New creates a Verifier. All three dependencies must be non-nil;
// unlike chainverify and rights, sigverify sits above both and is wired
// once, after the mutual pair is already connected.
func New(crypto CryptoVerifier, resolver KeyResolver, evaluator Evaluator) *Verifier {
	return &Verifier{crypto: crypto, resolver: resolver, evaluator: evaluator}
}

// Verify resolves artifact.ClaimedSigner's candidate keys, finds the
// first one the signature verifies under, and returns the chain
// evaluator's verdict for that key. It returns false when no candidate
// key's signature checks out, returned as a (value, ok) pair.
func (v *Verifier) Verify(artifact SignedArtifact) (model.KeyTrustInfo, bool) {
	for _, candidateKey := range v.resolver.KeysOf(artifact.ClaimedSigner) {
		material, ok := v.resolver.KeyMaterial(candidateKey)
		if !ok {
			continue
		}
		if !v.crypto.Verify(artifact.Payload, artifact.Signature, material) {
			continue
		}
		return v.evaluator.IsKeyTrusted(candidateKey), true
	}
	return model.KeyTrustInfo{}, false
}
