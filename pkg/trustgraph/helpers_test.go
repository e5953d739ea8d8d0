package trustgraph

import (
	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/wire"
)

// buildTrustKeysCert builds a TrustKeys certificate signed by signerKey,
// declaring signerPerson as signer and endorsing endorsedKey.
func buildTrustKeysCert(signerPerson hashid.PersonID, signerKey []byte, endorsedKey hashid.Hash, ts uint64) *model.Certificate {
	payload := wire.EncodeTrustKeysPayload(model.TrustKeysPayload{
		SignerPersonID: signerPerson,
		EndorsedKeyID:  endorsedKey,
	})
	return signCert(model.KindTrustKeys, payload, signerKey, ts)
}

func buildAuthorityCert(kind model.CertKind, grantor, grantee hashid.PersonID, grantorKey []byte, ts uint64) *model.Certificate {
	payload := wire.EncodeAuthorityPayload(model.AuthorityPayload{
		GrantorPersonID: grantor,
		GranteePersonID: grantee,
	})
	return signCert(kind, payload, grantorKey, ts)
}

func signCert(kind model.CertKind, payload []byte, signerKey []byte, ts uint64) *model.Certificate {
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

func buildProfile(profileID hashid.Hash, person hashid.PersonID, keys []hashid.Hash, ts uint64) *model.Profile {
	return &model.Profile{
		ProfileID: profileID,
		PersonID:  person,
		Owner:     person,
		Timestamp: ts,
		Keys:      keys,
	}
}
