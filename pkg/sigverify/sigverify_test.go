package sigverify

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
)

type fakeCrypto struct{}

func (fakeCrypto) Verify(payload, signature, publicKey []byte) bool {
	mac := hmac.New(sha256.New, publicKey)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), signature)
}

func sign(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

type fakeResolver struct {
	keys     map[hashid.PersonID][]hashid.Hash
	material map[hashid.Hash][]byte
}

func (r *fakeResolver) KeysOf(person hashid.PersonID) []hashid.Hash { return r.keys[person] }
func (r *fakeResolver) KeyMaterial(keyID hashid.Hash) ([]byte, bool) {
	m, ok := r.material[keyID]
	return m, ok
}

type fakeEvaluator struct{ trusted map[hashid.Hash]bool }

func (e *fakeEvaluator) IsKeyTrusted(keyID hashid.Hash) model.KeyTrustInfo {
	return model.KeyTrustInfo{KeyID: keyID, Trusted: e.trusted[keyID]}
}

func TestVerifyReturnsEvaluatorVerdictForFirstMatchingKey(t *testing.T) {
	signer, _ := hashid.NewPersonID("alice")
	keyA := []byte("key-a")
	keyAID := hashid.FromBytes(keyA)
	keyB := []byte("key-b")
	keyBID := hashid.FromBytes(keyB)

	resolver := &fakeResolver{
		keys:     map[hashid.PersonID][]hashid.Hash{signer: {keyAID, keyBID}},
		material: map[hashid.Hash][]byte{keyAID: keyA, keyBID: keyB},
	}
	evaluator := &fakeEvaluator{trusted: map[hashid.Hash]bool{keyBID: true}}
	verifier := New(fakeCrypto{}, resolver, evaluator)

	payload := []byte("artifact payload")
	artifact := SignedArtifact{
		ClaimedSigner: signer,
		Payload:       payload,
		Signature:     sign(keyB, payload), // only keyB's signature checks out
	}

	info, ok := verifier.Verify(artifact)
	if !ok {
		t.Fatal("expected verification to succeed")
	}
	if !info.KeyID.Equal(keyBID) || !info.Trusted {
		t.Fatalf("expected trusted verdict for key-b, got %+v", info)
	}
}

func TestVerifyReturnsFalseWhenNoCandidateKeyMatches(t *testing.T) {
	signer, _ := hashid.NewPersonID("alice")
	keyA := []byte("key-a")
	keyAID := hashid.FromBytes(keyA)

	resolver := &fakeResolver{
		keys:     map[hashid.PersonID][]hashid.Hash{signer: {keyAID}},
		material: map[hashid.Hash][]byte{keyAID: keyA},
	}
	evaluator := &fakeEvaluator{trusted: map[hashid.Hash]bool{}}
	verifier := New(fakeCrypto{}, resolver, evaluator)

	artifact := SignedArtifact{
		ClaimedSigner: signer,
		Payload:       []byte("artifact payload"),
		Signature:     []byte("garbage signature"),
	}

	if _, ok := verifier.Verify(artifact); ok {
		t.Fatal("expected verification to fail when no candidate key's signature checks out")
	}
}

func TestVerifyNeverShortCircuitsTheEvaluator(t *testing.T) {
	signer, _ := hashid.NewPersonID("alice")
	key := []byte("key-a")
	keyID := hashid.FromBytes(key)

	resolver := &fakeResolver{
		keys:     map[hashid.PersonID][]hashid.Hash{signer: {keyID}},
		material: map[hashid.Hash][]byte{keyID: key},
	}
	evaluator := &fakeEvaluator{trusted: map[hashid.Hash]bool{}}
	verifier := New(fakeCrypto{}, resolver, evaluator)

	payload := []byte("artifact payload")
	artifact := SignedArtifact{ClaimedSigner: signer, Payload: payload, Signature: sign(key, payload)}

	info, ok := verifier.Verify(artifact)
	if !ok || info.Trusted {
		t.Fatalf("expected a false verdict to pass through, got ok=%v info=%+v", ok, info)
	}

	evaluator.trusted[keyID] = true
	info, ok = verifier.Verify(artifact)
	if !ok || !info.Trusted {
		t.Fatalf("expected trust revocation/grant to be observed on next call, got ok=%v info=%+v", ok, info)
	}
}
