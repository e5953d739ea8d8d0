// Package model defines the core data types shared by every component of
// the trust core: keys, persons, profiles, certificates, and the verdict
// and rights records the chain evaluator and rights engine produce.
package model

import (
	"github.com/juergengeck/trustcore/pkg/hashid"
)

// CertKind is the closed tagged variant of certificate kinds. Dispatch on
// Kind is exhaustive; there is no open extension point.
type CertKind uint8

const (
	KindAffirmation CertKind = 0
	KindTrustKeys   CertKind = 1
	KindRightToDeclareTrustedKeysForEverybody CertKind = 2
	KindRightToDeclareTrustedKeysForSelf      CertKind = 3
)

func (k CertKind) String() string {
	switch k {
	case KindAffirmation:
		return "Affirmation"
	case KindTrustKeys:
		return "TrustKeys"
	case KindRightToDeclareTrustedKeysForEverybody:
		return "RightToDeclareTrustedKeysForEverybody"
	case KindRightToDeclareTrustedKeysForSelf:
		return "RightToDeclareTrustedKeysForSelf"
	default:
		return "Unknown"
	}
}

// Valid reports whether k is one of the four known kinds.
func (k CertKind) Valid() bool {
	return k <= KindRightToDeclareTrustedKeysForSelf
}

// Key is an opaque public key, uniquely addressed by its content-hash
// KeyID. Keys are immutable once observed.
type Key struct {
	KeyID hashid.Hash
	Raw   []byte
}

// TrustKeysPayload is the decoded payload of a TrustKeys certificate: the
// signer names themselves and the key they endorse. The endorsed key is
// extracted from this payload during intake, never guessed.
type TrustKeysPayload struct {
	SignerPersonID hashid.PersonID
	EndorsedKeyID  hashid.Hash
}

// AuthorityPayload is the decoded payload of a RightToDeclareTrustedKeys
// ForEverybody or RightToDeclareTrustedKeysForSelf certificate. Expiration
// is parsed and round-tripped but never consulted by the chain evaluator
// (see the open question on expiration in the design notes).
type AuthorityPayload struct {
	GrantorPersonID hashid.PersonID
	GranteePersonID hashid.PersonID
	Expiration      *uint64
}

// AffirmationPayload is the decoded payload of an Affirmation certificate:
// a signer's free-form claims about a subject. Claims carry no authority;
// they never participate in chain evaluation.
type AffirmationPayload struct {
	SignerPersonID hashid.PersonID
	Subject        string
	Claims         map[string]string
}

// Certificate is an immutable admitted record. Payload is the exact bytes
// hashed into PayloadHash. The only decoded data kept alongside it are
// the EndorsedKeyID and SubjectKeyID back-links below, parsed from
// Payload and not a separate source of truth.
type Certificate struct {
	CertID        hashid.Hash
	Kind          CertKind
	Payload       []byte
	Signature     []byte
	PayloadHash   hashid.Hash
	SignatureHash hashid.Hash
	Timestamp     uint64
	Trusted       bool

	// EndorsedKeyID is the back-link extracted from a TrustKeys payload
	// at intake. Zero for every other kind.
	EndorsedKeyID hashid.Hash

	// SubjectKeyID is the back-link extracted from an Affirmation
	// payload whose Subject parses as a key_id. Zero when Subject is
	// free-form text or absent, and for every non-Affirmation kind.
	SubjectKeyID hashid.Hash

	// Sequence is the admission-order tie-breaker assigned by the Trust
	// Graph Store. It is never part of the wire form or the hash.
	Sequence uint64
}

// Profile is a signed declaration binding a person to a set of keys and
// certificates. A profile is superseded by one with the same ProfileID
// and a greater Timestamp, or an equal Timestamp and a different
// ProfileHash; earlier ones remain admitted but are no longer returned
// by lookups.
type Profile struct {
	ProfileID   hashid.Hash
	PersonID    hashid.PersonID
	Owner       hashid.PersonID
	ProfileHash hashid.Hash
	Timestamp   uint64
	Keys        []hashid.Hash
	Certificates []hashid.Hash
}

// TrustReason tags the provenance of a KeyTrustInfo verdict.
type TrustReason int

const (
	ReasonNoPath TrustReason = iota
	ReasonRoot
	ReasonEndorsedBy
	ReasonCycleBroken
	ReasonInvalidCertificate
)

func (r TrustReason) String() string {
	switch r {
	case ReasonRoot:
		return "Root"
	case ReasonEndorsedBy:
		return "EndorsedBy"
	case ReasonCycleBroken:
		return "CycleBroken"
	case ReasonInvalidCertificate:
		return "InvalidCertificate"
	default:
		return "NoPath"
	}
}

// KeyTrustInfo is the verdict produced by the chain evaluator for a
// single key: trusted or not, the reason, and the endorsing path as
// certificate IDs, empty when untrusted. Path[0] is the certificate
// endorsing the key itself, each later entry endorses the previous
// certificate's signer key, and the last one is signed by a root key; a
// root key's own verdict has an empty path.
type KeyTrustInfo struct {
	KeyID   hashid.Hash
	Trusted bool
	Reason  TrustReason
	// EndorsingCertID is set when Reason is ReasonEndorsedBy.
	EndorsingCertID hashid.Hash
	Path            []hashid.Hash
}

// PersonRights is the derived, never hand-edited capability map for one
// person.
type PersonRights struct {
	MayEndorseForEverybody bool
	MayEndorseForSelf      bool
}
