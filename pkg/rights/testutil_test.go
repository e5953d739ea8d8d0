package rights

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/wire"
)

var errCryptoUnavailable = errors.New("rights test: crypto capability unavailable")

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

func buildAuthorityCert(kind model.CertKind, grantor, grantee hashid.PersonID, grantorKey []byte, ts uint64) *model.Certificate {
	payload := wire.EncodeAuthorityPayload(model.AuthorityPayload{
		GrantorPersonID: grantor,
		GranteePersonID: grantee,
	})
	var c fakeCap
	sig := signFake(grantorKey, payload)
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
