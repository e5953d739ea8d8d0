package certops

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/juergengeck/trustcore/pkg/hashid"
)

var errCryptoUnavailable = errors.New("certops test: crypto capability unavailable")

// fakeCap signs only with the key held in its signingKey field, modeling the "local identity" ValidateCertificate and
// Certify are meant to operate against — ValidateCertificate never
// needs to sign, and Certify always signs with the same local key.
type fakeCap struct {
	signingKey []byte
}

func (f fakeCap) Hash(data []byte) hashid.Hash { return hashid.FromBytes(data) }

func (f fakeCap) Sign(payload []byte) ([]byte, error) {
	if f.signingKey == nil {
		return nil, errCryptoUnavailable
	}
	return signFake(f.signingKey, payload), nil
}

func (f fakeCap) Verify(payload, signature, publicKey []byte) bool {
	return hmac.Equal(signFake(publicKey, payload), signature)
}

func (f fakeCap) GenerateKeypair() ([]byte, error) { return nil, errCryptoUnavailable }

func (f fakeCap) Random(n int) ([]byte, error) { return make([]byte, n), nil }

func (f fakeCap) LocalPublicKey() ([]byte, error) {
	if f.signingKey == nil {
		return nil, errCryptoUnavailable
	}
	return f.signingKey, nil
}

func signFake(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}
