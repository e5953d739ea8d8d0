// Package certops implements certificate issuance and the structural
// validation contract every admitted certificate must satisfy. It is
// deliberately narrow: validation here never touches the trust graph or
// verifies a signature against a trusted key — that happens later, in
// the chain evaluator, against interfaces this package also defines so
// is_certified_by can be expressed without importing the store or
// evaluator packages directly.
package certops

import (
	"errors"
	"fmt"

	"github.com/juergengeck/trustcore/pkg/cryptocap"
	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/wire"
)

// ErrMalformedCertificate and ErrHashMismatch are the sentinel errors
// surfaced by ValidateCertificate, matching §7's error taxonomy.
var (
	ErrMalformedCertificate = errors.New("certops: malformed certificate")
	ErrHashMismatch         = errors.New("certops: hash mismatch")
)

// ValidateCertificate performs the structural checks required before any
// certificate may be admitted or treated as evidence during traversal:
// payload_hash == H(payload), signature_hash == H(signature), the kind
// is one of the four known alternatives, and the payload decodes as a
// record of the declared kind. It never verifies the signature itself.
func ValidateCertificate(cap cryptocap.Capability, c *model.Certificate) error {
	if c == nil {
		return fmt.Errorf("%w: certificate must not be nil", ErrMalformedCertificate)
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedCertificate, c.Kind)
	}

	computedPayloadHash := cap.Hash(c.Payload)
	if !computedPayloadHash.Equal(c.PayloadHash) {
		return fmt.Errorf("%w: payload_hash", ErrHashMismatch)
	}
	computedSignatureHash := cap.Hash(c.Signature)
	if !computedSignatureHash.Equal(c.SignatureHash) {
		return fmt.Errorf("%w: signature_hash", ErrHashMismatch)
	}

	switch c.Kind {
	case model.KindTrustKeys:
		if _, err := wire.DecodeTrustKeysPayload(c.Payload); err != nil {
			return fmt.Errorf("%w: trust keys payload: %v", ErrMalformedCertificate, err)
		}
	case model.KindRightToDeclareTrustedKeysForEverybody, model.KindRightToDeclareTrustedKeysForSelf:
		if _, err := wire.DecodeAuthorityPayload(c.Payload); err != nil {
			return fmt.Errorf("%w: authority payload: %v", ErrMalformedCertificate, err)
		}
	case model.KindAffirmation:
		if _, err := wire.DecodeAffirmationPayload(c.Payload); err != nil {
			return fmt.Errorf("%w: affirmation payload: %v", ErrMalformedCertificate, err)
		}
	}
	return nil
}

// ExtractEndorsedKeyID decodes a TrustKeys payload and returns the key it
// endorses. Callers must only invoke this once ValidateCertificate has
// confirmed the payload decodes for its declared kind.
func ExtractEndorsedKeyID(c *model.Certificate) (hashid.Hash, error) {
	if c.Kind != model.KindTrustKeys {
		return hashid.Hash{}, fmt.Errorf("certops: certificate kind %s is not TrustKeys", c.Kind)
	}
	payload, err := wire.DecodeTrustKeysPayload(c.Payload)
	if err != nil {
		return hashid.Hash{}, err
	}
	return payload.EndorsedKeyID, nil
}

// ExtractSubjectKeyID decodes an Affirmation payload and, if its Subject
// parses as a hex-encoded key_id, returns that key. Subject is free-form
// text in general, so a parse failure is not an error: it just means this
// affirmation is not about a specific key.
func ExtractSubjectKeyID(c *model.Certificate) (hashid.Hash, bool, error) {
	if c.Kind != model.KindAffirmation {
		return hashid.Hash{}, false, fmt.Errorf("certops: certificate kind %s is not Affirmation", c.Kind)
	}
	payload, err := wire.DecodeAffirmationPayload(c.Payload)
	if err != nil {
		return hashid.Hash{}, false, err
	}
	subjectKeyID, err := hashid.FromHex(payload.Subject)
	if err != nil {
		return hashid.Hash{}, false, nil
	}
	return subjectKeyID, true, nil
}

// SignerOf decodes the embedded signer person_id from a certificate's
// payload, per kind. Affirmation, TrustKeys, and the two authority kinds
// each carry their signer/grantor as the first payload field.
func SignerOf(c *model.Certificate) (hashid.PersonID, error) {
	switch c.Kind {
	case model.KindTrustKeys:
		p, err := wire.DecodeTrustKeysPayload(c.Payload)
		if err != nil {
			return "", err
		}
		return p.SignerPersonID, nil
	case model.KindRightToDeclareTrustedKeysForEverybody, model.KindRightToDeclareTrustedKeysForSelf:
		p, err := wire.DecodeAuthorityPayload(c.Payload)
		if err != nil {
			return "", err
		}
		return p.GrantorPersonID, nil
	case model.KindAffirmation:
		p, err := wire.DecodeAffirmationPayload(c.Payload)
		if err != nil {
			return "", err
		}
		return p.SignerPersonID, nil
	default:
		return "", fmt.Errorf("certops: unknown kind %d", c.Kind)
	}
}

// Certify issues a new locally-signed certificate: it computes
// payload_hash, signs payload with the local identity key, computes
// signature_hash, sets Timestamp and Trusted, and returns the record.
// Local issuance never populates EndorsedKeyID from peer data — for
// TrustKeys certificates the caller must have already embedded the
// endorsed key in payload.
func Certify(cap cryptocap.Capability, kind model.CertKind, payload []byte, timestamp uint64) (*model.Certificate, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("certops: unknown kind %d", kind)
	}
	signature, err := cap.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("certops: sign payload: %w", err)
	}

	payloadHash := cap.Hash(payload)
	signatureHash := cap.Hash(signature)
	certID := cap.Hash(append(append([]byte{}, payloadHash.Bytes()...), signatureHash.Bytes()...))

	cert := &model.Certificate{
		CertID:        certID,
		Kind:          kind,
		Payload:       payload,
		Signature:     signature,
		PayloadHash:   payloadHash,
		SignatureHash: signatureHash,
		Timestamp:     timestamp,
		Trusted:       true,
	}
	if kind == model.KindTrustKeys {
		endorsed, err := ExtractEndorsedKeyID(cert)
		if err != nil {
			return nil, fmt.Errorf("certops: locally issued trust keys cert: %w", err)
		}
		cert.EndorsedKeyID = endorsed
	}
	return cert, nil
}

// CertificateLister is the narrow read surface of the trust graph store
// that is_certified_by needs. The trust graph store satisfies it without
// this package importing that package.
type CertificateLister interface {
	CertificatesFor(keyID hashid.Hash, kind model.CertKind) []hashid.Hash
	Certificate(certID hashid.Hash) (*model.Certificate, bool)
	KeysOf(person hashid.PersonID) []hashid.Hash
	KeyMaterial(keyID hashid.Hash) ([]byte, bool)
}

// KeyTrustChecker is the narrow read surface of the chain evaluator that
// is_certified_by needs.
type KeyTrustChecker interface {
	IsKeyTrusted(keyID hashid.Hash) model.KeyTrustInfo
}

// IsCertifiedBy reports whether some certificate of kind naming
// subjectKeyID as its subject was issued by a key belonging to issuer
// that the chain evaluator currently trusts. It iterates
// CertificatesFor(subjectKeyID, kind) in admission order and returns on
// the first certificate whose signature verifies against a trusted key
// of issuer.
func IsCertifiedBy(
	store CertificateLister,
	evaluator KeyTrustChecker,
	cap cryptocap.Capability,
	subjectKeyID hashid.Hash,
	kind model.CertKind,
	issuer hashid.PersonID,
) bool {
	for _, certID := range store.CertificatesFor(subjectKeyID, kind) {
		cert, ok := store.Certificate(certID)
		if !ok || !cert.Trusted {
			continue
		}
		for _, candidateKey := range store.KeysOf(issuer) {
			if !evaluator.IsKeyTrusted(candidateKey).Trusted {
				continue
			}
			material, ok := store.KeyMaterial(candidateKey)
			if !ok {
				continue
			}
			if cap.Verify(cert.Payload, cert.Signature, material) {
				return true
			}
		}
	}
	return false
}
