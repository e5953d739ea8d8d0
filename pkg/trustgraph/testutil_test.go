package trustgraph

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/juergengeck/trustcore/pkg/hashid"
)

var errCryptoUnavailable = errors.New("trustgraph test: crypto capability unavailable")

// fakeCap is a deterministic HMAC-based crypto capability double: the
// "public key" doubles as the HMAC key, so tests can sign with any
// number of independent identities without the real key-agreement
// machinery ouroboros-crypt provides in production.
type fakeCap struct{}

func (fakeCap) Hash(data []byte) hashid.Hash { return hashid.FromBytes(data) }

func (fakeCap) Sign(payload []byte) ([]byte, error) { return nil, errCryptoUnavailable }

func (fakeCap) Verify(payload, signature, publicKey []byte) bool {
	return hmac.Equal(signFake(publicKey, payload), signature)
}

func (fakeCap) GenerateKeypair() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (fakeCap) Random(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (fakeCap) LocalPublicKey() ([]byte, error) { return nil, errCryptoUnavailable }

func signFake(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}
