package trustgraph

import (
	"testing"

	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
)

func trustedRootVerdict(keyID hashid.Hash) model.KeyTrustInfo {
	return model.KeyTrustInfo{KeyID: keyID, Trusted: true, Reason: model.ReasonRoot}
}

func TestAdmitCertificateRejectsHashMismatch(t *testing.T) {
	store := NewStore(fakeCap{}, nil)
	signerKey := []byte("signer-key")
	signer, _ := hashid.NewPersonID("root")
	cert := buildTrustKeysCert(signer, signerKey, hashid.FromBytes([]byte("key-a")), 1)

	cert.PayloadHash = hashid.FromBytes([]byte("tampered"))

	if err := store.AdmitCertificate(cert); err == nil {
		t.Fatal("expected hash mismatch to be rejected")
	}
	if _, ok := store.Certificate(cert.CertID); ok {
		t.Fatal("store must not contain a rejected certificate")
	}
}

func TestAdmitCertificateIdempotent(t *testing.T) {
	store := NewStore(fakeCap{}, nil)
	signer, _ := hashid.NewPersonID("root")
	cert := buildTrustKeysCert(signer, []byte("signer-key"), hashid.FromBytes([]byte("key-a")), 1)

	if err := store.AdmitCertificate(cert); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if err := store.AdmitCertificate(cert); err != nil {
		t.Fatalf("second admit should be a no-op, got: %v", err)
	}
	if len(store.AllCertificates()) != 1 {
		t.Fatalf("expected exactly one stored certificate, got %d", len(store.AllCertificates()))
	}
}

func TestAdmitProfileStaleRejected(t *testing.T) {
	store := NewStore(fakeCap{}, nil)
	person, _ := hashid.NewPersonID("alice")
	profileID := hashid.FromBytes([]byte("profile-alice"))
	keyA := hashid.FromBytes([]byte("key-a"))
	keyB := hashid.FromBytes([]byte("key-b"))

	if err := store.AdmitProfile(buildProfile(profileID, person, []hashid.Hash{keyA}, 10)); err != nil {
		t.Fatalf("admit newer profile: %v", err)
	}
	if err := store.AdmitProfile(buildProfile(profileID, person, []hashid.Hash{keyB}, 5)); err != ErrStaleProfile {
		t.Fatalf("expected ErrStaleProfile, got %v", err)
	}

	keys := store.KeysOf(person)
	if len(keys) != 1 || !keys[0].Equal(keyA) {
		t.Fatalf("stale profile must not affect keys_of, got %v", keys)
	}
}

func TestAdmitProfileSupersedesOnGreaterTimestamp(t *testing.T) {
	store := NewStore(fakeCap{}, nil)
	person, _ := hashid.NewPersonID("alice")
	profileID := hashid.FromBytes([]byte("profile-alice"))
	keyA := hashid.FromBytes([]byte("key-a"))
	keyB := hashid.FromBytes([]byte("key-b"))

	if err := store.AdmitProfile(buildProfile(profileID, person, []hashid.Hash{keyA}, 10)); err != nil {
		t.Fatalf("admit first profile: %v", err)
	}
	if err := store.AdmitProfile(buildProfile(profileID, person, []hashid.Hash{keyB}, 20)); err != nil {
		t.Fatalf("admit superseding profile: %v", err)
	}

	keys := store.KeysOf(person)
	if len(keys) != 1 || !keys[0].Equal(keyB) {
		t.Fatalf("expected only the superseding profile's keys, got %v", keys)
	}
}

func TestKeysOfUnionsMultipleProfiles(t *testing.T) {
	store := NewStore(fakeCap{}, nil)
	person, _ := hashid.NewPersonID("alice")
	profileA := hashid.FromBytes([]byte("profile-a"))
	profileB := hashid.FromBytes([]byte("profile-b"))
	keyA := hashid.FromBytes([]byte("key-a"))
	keyB := hashid.FromBytes([]byte("key-b"))

	if err := store.AdmitProfile(buildProfile(profileA, person, []hashid.Hash{keyA}, 1)); err != nil {
		t.Fatalf("admit profile a: %v", err)
	}
	if err := store.AdmitProfile(buildProfile(profileB, person, []hashid.Hash{keyB}, 1)); err != nil {
		t.Fatalf("admit profile b: %v", err)
	}

	keys := store.KeysOf(person)
	if len(keys) != 2 {
		t.Fatalf("expected both profiles' keys unioned, got %v", keys)
	}
}

func TestCertificatesForOrderedByAdmission(t *testing.T) {
	store := NewStore(fakeCap{}, nil)
	signer, _ := hashid.NewPersonID("root")
	endorsed := hashid.FromBytes([]byte("key-a"))

	first := buildTrustKeysCert(signer, []byte("k1"), endorsed, 1)
	second := buildTrustKeysCert(signer, []byte("k2"), endorsed, 2)

	if err := store.AdmitCertificate(first); err != nil {
		t.Fatalf("admit first: %v", err)
	}
	if err := store.AdmitCertificate(second); err != nil {
		t.Fatalf("admit second: %v", err)
	}

	ids := store.CertificatesFor(endorsed, model.KindTrustKeys)
	if len(ids) != 2 || !ids[0].Equal(first.CertID) || !ids[1].Equal(second.CertID) {
		t.Fatalf("expected admission order [first, second], got %v", ids)
	}
}

func TestInvalidateCachesClearsTrustCache(t *testing.T) {
	store := NewStore(fakeCap{}, nil)
	keyID := hashid.FromBytes([]byte("key-a"))
	store.SetCachedTrust(trustedRootVerdict(keyID))

	if _, ok := store.CachedTrust(keyID); !ok {
		t.Fatal("expected cached verdict before invalidation")
	}
	store.InvalidateCaches()
	if _, ok := store.CachedTrust(keyID); ok {
		t.Fatal("cache must be empty after InvalidateCaches")
	}
}
