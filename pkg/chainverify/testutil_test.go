package chainverify

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/rights"
	"github.com/juergengeck/trustcore/pkg/rootprovider"
	"github.com/juergengeck/trustcore/pkg/trustgraph"
	"github.com/juergengeck/trustcore/pkg/wire"
)

var errCryptoUnavailable = errors.New("chainverify test: crypto capability unavailable")

// fakeCap is the same deterministic HMAC-based double used across the
// trust core's test suites: the "public key" doubles as the HMAC key,
// letting tests sign with as many independent identities as a scenario
// needs without the real key-agreement machinery.
type fakeCap struct{}

func (fakeCap) Hash(data []byte) hashid.Hash { return hashid.FromBytes(data) }

func (fakeCap) Sign(payload []byte) ([]byte, error) { return nil, errCryptoUnavailable }

func (fakeCap) Verify(payload, signature, publicKey []byte) bool {
	return hmac.Equal(signFake(publicKey, payload), signature)
}

func (fakeCap) GenerateKeypair() ([]byte, error) { return nil, errCryptoUnavailable }

func (fakeCap) Random(n int) ([]byte, error) { return make([]byte, n), nil }

func (fakeCap) LocalPublicKey() ([]byte, error) { return nil, errCryptoUnavailable }

func signFake(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// harness wires a store, evaluator, and rights engine together the same
// way pkg/actor.New does, so the mutual evaluator/rights dependency is
// connected before any traversal runs.
type harness struct {
	store *trustgraph.Store
	roots *rootprovider.StaticProvider
	eval  *Evaluator
}

func newHarness() *harness {
	store := trustgraph.NewStore(fakeCap{}, nil)
	roots := rootprovider.NewStaticProvider(nil, nil)
	eval := New(store, roots, fakeCap{}, nil)
	rightsEngine := rights.New(store, roots)
	eval.SetRightsChecker(rightsEngine)
	rightsEngine.SetTrustChecker(eval)
	return &harness{store: store, roots: roots, eval: eval}
}

// registerPerson binds person to a fresh key derived from rawKey,
// registering both the profile (so KeysOf resolves it) and the key
// material (so KeyMaterial/Verify can check signatures against it), and
// returns the resulting key_id.
func (h *harness) registerPerson(person hashid.PersonID, rawKey []byte) hashid.Hash {
	keyID := hashid.FromBytes(rawKey)
	h.store.RegisterKey(keyID, rawKey)
	profile := &model.Profile{
		ProfileID: hashid.FromBytes([]byte("profile:" + person.String())),
		PersonID:  person,
		Owner:     person,
		Timestamp: 1,
		Keys:      []hashid.Hash{keyID},
	}
	if err := h.store.AdmitProfile(profile); err != nil {
		panic(err)
	}
	return keyID
}

func (h *harness) admitTrustKeys(signerPerson hashid.PersonID, signerKey []byte, endorsedKey hashid.Hash, ts uint64) *model.Certificate {
	payload := wire.EncodeTrustKeysPayload(model.TrustKeysPayload{
		SignerPersonID: signerPerson,
		EndorsedKeyID:  endorsedKey,
	})
	cert := h.sign(model.KindTrustKeys, payload, signerKey, ts)
	if err := h.store.AdmitCertificate(cert); err != nil {
		panic(err)
	}
	return cert
}

func (h *harness) admitAuthority(kind model.CertKind, grantor, grantee hashid.PersonID, grantorKey []byte, ts uint64) *model.Certificate {
	payload := wire.EncodeAuthorityPayload(model.AuthorityPayload{
		GrantorPersonID: grantor,
		GranteePersonID: grantee,
	})
	cert := h.sign(kind, payload, grantorKey, ts)
	if err := h.store.AdmitCertificate(cert); err != nil {
		panic(err)
	}
	return cert
}

func (h *harness) sign(kind model.CertKind, payload []byte, signerKey []byte, ts uint64) *model.Certificate {
	var c fakeCap
	sig := signFake(signerKey, payload)
	payloadHash := c.Hash(payload)
	sigHash := c.Hash(sig)
	certID := c.Hash(append(append([]byte{}, payloadHash.Bytes()...), sigHash.Bytes()...))
	return &model.Certificate{
		CertID:        certID,
		Kind:          kind,
		Payload:       payload,
		Signature:     sig,
		PayloadHash:   payloadHash,
		SignatureHash: sigHash,
		Timestamp:     ts,
		Trusted:       true,
	}
}
