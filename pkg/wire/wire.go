// Package wire implements the bit-exact binary codec for certificates,
// profiles, and certificate payloads. It follows the length-prefixed
// field layout used by the trust core's ancestor auth package rather
// than a reflection-based or protobuf codec: every field is either
// fixed-width or preceded by a uint32 big-endian length, so encoding is
// deterministic by construction and round-trips bit-for-bit.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
)

const certWireVersion = 1

// readSizedField reads a uint32 big-endian length prefix followed by
// that many bytes, returning the field and the offset just past it.
func readSizedField(data []byte, offset int) ([]byte, int, error) {
	if len(data[offset:]) < 4 {
		return nil, offset, errors.New("wire: missing length prefix")
	}
	fieldLen := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	if uint64(len(data[offset:])) < uint64(fieldLen) {
		return nil, offset, errors.New("wire: field length exceeds remaining data")
	}
	field := make([]byte, fieldLen)
	copy(field, data[offset:offset+int(fieldLen)])
	offset += int(fieldLen)
	return field, offset, nil
}

func appendSizedField(buf []byte, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, field...)
	return buf
}

func readFixedHash(data []byte, offset int) (hashid.Hash, int, error) {
	if len(data[offset:]) < 32 {
		return hashid.Hash{}, offset, errors.New("wire: truncated hash field")
	}
	var h hashid.Hash
	copy(h[:], data[offset:offset+32])
	return h, offset + 32, nil
}

// EncodeTrustKeysPayload serializes a TrustKeysPayload:
// len(signer_person_id) || signer_person_id || endorsed_key_id(32).
func EncodeTrustKeysPayload(p model.TrustKeysPayload) []byte {
	buf := make([]byte, 0, 4+len(p.SignerPersonID)+32)
	buf = appendSizedField(buf, []byte(p.SignerPersonID))
	buf = append(buf, p.EndorsedKeyID.Bytes()...)
	return buf
}

// DecodeTrustKeysPayload parses the wire form of a TrustKeysPayload.
func DecodeTrustKeysPayload(data []byte) (model.TrustKeysPayload, error) {
	signer, offset, err := readSizedField(data, 0)
	if err != nil {
		return model.TrustKeysPayload{}, fmt.Errorf("wire: trust keys signer: %w", err)
	}
	endorsed, offset, err := readFixedHash(data, offset)
	if err != nil {
		return model.TrustKeysPayload{}, fmt.Errorf("wire: trust keys endorsed key: %w", err)
	}
	if offset != len(data) {
		return model.TrustKeysPayload{}, errors.New("wire: trust keys payload has trailing bytes")
	}
	return model.TrustKeysPayload{
		SignerPersonID: hashid.PersonID(signer),
		EndorsedKeyID:  endorsed,
	}, nil
}

// EncodeAuthorityPayload serializes an AuthorityPayload:
// len(grantor) || grantor || len(grantee) || grantee ||
// has_expiration(1) || expiration(8, only if has_expiration).
func EncodeAuthorityPayload(p model.AuthorityPayload) []byte {
	buf := make([]byte, 0, 16+len(p.GrantorPersonID)+len(p.GranteePersonID))
	buf = appendSizedField(buf, []byte(p.GrantorPersonID))
	buf = appendSizedField(buf, []byte(p.GranteePersonID))
	if p.Expiration == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		var expBuf [8]byte
		binary.BigEndian.PutUint64(expBuf[:], *p.Expiration)
		buf = append(buf, expBuf[:]...)
	}
	return buf
}

// DecodeAuthorityPayload parses the wire form of an AuthorityPayload.
func DecodeAuthorityPayload(data []byte) (model.AuthorityPayload, error) {
	grantor, offset, err := readSizedField(data, 0)
	if err != nil {
		return model.AuthorityPayload{}, fmt.Errorf("wire: authority grantor: %w", err)
	}
	grantee, offset, err := readSizedField(data, offset)
	if err != nil {
		return model.AuthorityPayload{}, fmt.Errorf("wire: authority grantee: %w", err)
	}
	if len(data[offset:]) < 1 {
		return model.AuthorityPayload{}, errors.New("wire: authority payload missing expiration flag")
	}
	hasExpiration := data[offset]
	offset++

	result := model.AuthorityPayload{
		GrantorPersonID: hashid.PersonID(grantor),
		GranteePersonID: hashid.PersonID(grantee),
	}
	switch hasExpiration {
	case 0:
		if offset != len(data) {
			return model.AuthorityPayload{}, errors.New("wire: authority payload has trailing bytes")
		}
	case 1:
		if len(data[offset:]) != 8 {
			return model.AuthorityPayload{}, errors.New("wire: authority payload expiration field malformed")
		}
		exp := binary.BigEndian.Uint64(data[offset : offset+8])
		result.Expiration = &exp
	default:
		return model.AuthorityPayload{}, errors.New("wire: authority payload expiration flag invalid")
	}
	return result, nil
}

// EncodeAffirmationPayload serializes an AffirmationPayload:
// len(signer) || signer || len(subject) || subject ||
// claim_count(4) || (len(key) || key || len(value) || value)*.
func EncodeAffirmationPayload(p model.AffirmationPayload) []byte {
	buf := make([]byte, 0, 64)
	buf = appendSizedField(buf, []byte(p.SignerPersonID))
	buf = appendSizedField(buf, []byte(p.Subject))

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(p.Claims)))
	buf = append(buf, countBuf[:]...)

	keys := sortedClaimKeys(p.Claims)
	for _, k := range keys {
		buf = appendSizedField(buf, []byte(k))
		buf = appendSizedField(buf, []byte(p.Claims[k]))
	}
	return buf
}

func sortedClaimKeys(claims map[string]string) []string {
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	// Insertion sort: claim maps are small and this keeps encoding
	// deterministic without importing sort for a handful of entries.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// DecodeAffirmationPayload parses the wire form of an AffirmationPayload.
func DecodeAffirmationPayload(data []byte) (model.AffirmationPayload, error) {
	signer, offset, err := readSizedField(data, 0)
	if err != nil {
		return model.AffirmationPayload{}, fmt.Errorf("wire: affirmation signer: %w", err)
	}
	subject, offset, err := readSizedField(data, offset)
	if err != nil {
		return model.AffirmationPayload{}, fmt.Errorf("wire: affirmation subject: %w", err)
	}
	if len(data[offset:]) < 4 {
		return model.AffirmationPayload{}, errors.New("wire: affirmation payload missing claim count")
	}
	count := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4

	claims := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		key, next, err := readSizedField(data, offset)
		if err != nil {
			return model.AffirmationPayload{}, fmt.Errorf("wire: affirmation claim key: %w", err)
		}
		offset = next
		value, next, err := readSizedField(data, offset)
		if err != nil {
			return model.AffirmationPayload{}, fmt.Errorf("wire: affirmation claim value: %w", err)
		}
		offset = next
		claims[string(key)] = string(value)
	}
	if offset != len(data) {
		return model.AffirmationPayload{}, errors.New("wire: affirmation payload has trailing bytes")
	}
	return model.AffirmationPayload{
		SignerPersonID: hashid.PersonID(signer),
		Subject:        string(subject),
		Claims:         claims,
	}, nil
}

// EncodeCertificate serializes a Certificate into its canonical peer wire
// form: version(1) || kind(1) || cert_id(32) || len(payload) || payload ||
// len(signature) || signature || payload_hash(32) || signature_hash(32)
// || timestamp(8) || trusted(1).
func EncodeCertificate(c *model.Certificate) ([]byte, error) {
	if c == nil {
		return nil, errors.New("wire: certificate must not be nil")
	}
	if !c.Kind.Valid() {
		return nil, fmt.Errorf("wire: unknown certificate kind %d", c.Kind)
	}
	buf := make([]byte, 0, 64+len(c.Payload)+len(c.Signature))
	buf = append(buf, certWireVersion, byte(c.Kind))
	buf = append(buf, c.CertID.Bytes()...)
	buf = appendSizedField(buf, c.Payload)
	buf = appendSizedField(buf, c.Signature)
	buf = append(buf, c.PayloadHash.Bytes()...)
	buf = append(buf, c.SignatureHash.Bytes()...)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], c.Timestamp)
	buf = append(buf, tsBuf[:]...)

	if c.Trusted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf, nil
}

// DecodeCertificate parses the canonical peer wire form of a Certificate.
// It does not re-derive EndorsedKeyID or re-run structural validation —
// callers route the result through certops.ValidateCertificate before
// admission.
func DecodeCertificate(data []byte) (*model.Certificate, error) {
	if len(data) < 2+32 {
		return nil, errors.New("wire: certificate too short")
	}
	offset := 0
	version := data[offset]
	offset++
	if version != certWireVersion {
		return nil, fmt.Errorf("wire: unsupported certificate version %d", version)
	}
	kind := model.CertKind(data[offset])
	offset++
	if !kind.Valid() {
		return nil, fmt.Errorf("wire: unknown certificate kind %d", kind)
	}

	certID, offset, err := readFixedHash(data, offset)
	if err != nil {
		return nil, fmt.Errorf("wire: certificate id: %w", err)
	}

	payload, offset, err := readSizedField(data, offset)
	if err != nil {
		return nil, fmt.Errorf("wire: certificate payload: %w", err)
	}
	signature, offset, err := readSizedField(data, offset)
	if err != nil {
		return nil, fmt.Errorf("wire: certificate signature: %w", err)
	}

	payloadHash, offset, err := readFixedHash(data, offset)
	if err != nil {
		return nil, fmt.Errorf("wire: certificate payload hash: %w", err)
	}
	signatureHash, offset, err := readFixedHash(data, offset)
	if err != nil {
		return nil, fmt.Errorf("wire: certificate signature hash: %w", err)
	}

	if len(data[offset:]) != 9 {
		return nil, errors.New("wire: certificate has malformed tail")
	}
	timestamp := binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8
	trusted := data[offset] == 1

	return &model.Certificate{
		CertID:        certID,
		Kind:          kind,
		Payload:       payload,
		Signature:     signature,
		PayloadHash:   payloadHash,
		SignatureHash: signatureHash,
		Timestamp:     timestamp,
		Trusted:       trusted,
	}, nil
}

// EncodeProfile serializes a Profile: profile_id(32) || len(person_id) ||
// person_id || len(owner) || owner || profile_hash(32) || timestamp(8) ||
// key_count(4) || keys(32 each) || cert_count(4) || certs(32 each).
func EncodeProfile(p *model.Profile) ([]byte, error) {
	if p == nil {
		return nil, errors.New("wire: profile must not be nil")
	}
	buf := make([]byte, 0, 128)
	buf = append(buf, p.ProfileID.Bytes()...)
	buf = appendSizedField(buf, []byte(p.PersonID))
	buf = appendSizedField(buf, []byte(p.Owner))
	buf = append(buf, p.ProfileHash.Bytes()...)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], p.Timestamp)
	buf = append(buf, tsBuf[:]...)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(p.Keys)))
	buf = append(buf, countBuf[:]...)
	for _, k := range p.Keys {
		buf = append(buf, k.Bytes()...)
	}

	binary.BigEndian.PutUint32(countBuf[:], uint32(len(p.Certificates)))
	buf = append(buf, countBuf[:]...)
	for _, c := range p.Certificates {
		buf = append(buf, c.Bytes()...)
	}
	return buf, nil
}

// DecodeProfile parses the canonical wire form of a Profile.
func DecodeProfile(data []byte) (*model.Profile, error) {
	profileID, offset, err := readFixedHash(data, 0)
	if err != nil {
		return nil, fmt.Errorf("wire: profile id: %w", err)
	}
	personID, offset, err := readSizedField(data, offset)
	if err != nil {
		return nil, fmt.Errorf("wire: profile person id: %w", err)
	}
	owner, offset, err := readSizedField(data, offset)
	if err != nil {
		return nil, fmt.Errorf("wire: profile owner: %w", err)
	}
	profileHash, offset, err := readFixedHash(data, offset)
	if err != nil {
		return nil, fmt.Errorf("wire: profile hash: %w", err)
	}
	if len(data[offset:]) < 8+4 {
		return nil, errors.New("wire: profile missing timestamp/key count")
	}
	timestamp := binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8
	keyCount := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	if uint64(keyCount) > uint64(len(data[offset:]))/32 {
		return nil, errors.New("wire: profile key count exceeds remaining data")
	}

	keys := make([]hashid.Hash, 0, keyCount)
	for i := uint32(0); i < keyCount; i++ {
		var h hashid.Hash
		next, err := readInto(&h, data, offset)
		if err != nil {
			return nil, fmt.Errorf("wire: profile key %d: %w", i, err)
		}
		offset = next
		keys = append(keys, h)
	}

	if len(data[offset:]) < 4 {
		return nil, errors.New("wire: profile missing certificate count")
	}
	certCount := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	if uint64(certCount) > uint64(len(data[offset:]))/32 {
		return nil, errors.New("wire: profile certificate count exceeds remaining data")
	}

	certs := make([]hashid.Hash, 0, certCount)
	for i := uint32(0); i < certCount; i++ {
		var h hashid.Hash
		next, err := readInto(&h, data, offset)
		if err != nil {
			return nil, fmt.Errorf("wire: profile certificate %d: %w", i, err)
		}
		offset = next
		certs = append(certs, h)
	}

	if offset != len(data) {
		return nil, errors.New("wire: profile has trailing bytes")
	}

	return &model.Profile{
		ProfileID:    profileID,
		PersonID:     hashid.PersonID(personID),
		Owner:        hashid.PersonID(owner),
		ProfileHash:  profileHash,
		Timestamp:    timestamp,
		Keys:         keys,
		Certificates: certs,
	}, nil
}

func readInto(h *hashid.Hash, data []byte, offset int) (int, error) {
	v, next, err := readFixedHash(data, offset)
	if err != nil {
		return offset, err
	}
	*h = v
	return next, nil
}
