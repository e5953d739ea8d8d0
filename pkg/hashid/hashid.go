// Package hashid provides the fixed-size content-hash identifier type used
// throughout the trust core for key_id, cert_id, and profile_id, plus a
// thin opaque-handle constructor for person identifiers.
package hashid

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash is a fixed-size SHA-256 content hash, used as the canonical
// identifier for keys, certificates, and profiles.
type Hash [sha256.Size]byte

// FromBytes computes the SHA-256 hash of data.
func FromBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// FromString computes the SHA-256 hash of s.
func FromString(s string) Hash {
	return FromBytes([]byte(s))
}

// FromHex parses a 64-character hexadecimal string into a Hash.
func FromHex(s string) (Hash, error) {
	if len(s) != sha256.Size*2 {
		return Hash{}, fmt.Errorf("hashid: invalid hex length: expected %d, got %d", sha256.Size*2, len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("hashid: decode hex: %w", err)
	}
	var h Hash
	copy(h[:], decoded)
	return h, nil
}

// Equal reports whether h and other are the same hash, in constant time.
func (h Hash) Equal(other Hash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// IsZero reports whether h is the all-zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a copy of the hash bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, len(h))
	copy(b, h[:])
	return b
}

// String returns the hexadecimal representation of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Hex is an alias for String.
func (h Hash) Hex() string {
	return h.String()
}

// PersonID is an opaque person handle. The core never synthesizes these;
// it only validates the shape of externally supplied handles.
type PersonID string

// NewPersonID validates and returns a PersonID from an opaque handle
// string. The handle must be non-empty; a "person:" prefix is accepted
// but not required, mirroring the DID-style subject naming used by the
// original credential subsystem without inheriting its fixed scheme.
func NewPersonID(handle string) (PersonID, error) {
	trimmed := strings.TrimSpace(handle)
	if trimmed == "" {
		return "", fmt.Errorf("hashid: person handle must not be empty")
	}
	return PersonID(trimmed), nil
}

func (p PersonID) String() string {
	return string(p)
}
