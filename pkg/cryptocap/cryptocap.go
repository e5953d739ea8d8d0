// Package cryptocap adapts github.com/i5heu/ouroboros-crypt to the
// narrow crypto capability the trust core depends on (hash, sign, verify,
// generate_keypair, random). The rest of the core depends only on the
// Capability interface defined here, the same indirection the node
// package applies between callers and the concrete *crypt.Crypt type.
package cryptocap

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	crypt "github.com/i5heu/ouroboros-crypt"
	"github.com/i5heu/ouroboros-crypt/pkg/keys"

	"github.com/juergengeck/trustcore/pkg/hashid"
)

const identityFileName = "trustcore.key"

// Capability is the crypto surface required by the trust core. It is
// total: Verify never panics or errors, it returns false on any failure
// to verify, matching §6's "no exceptions" requirement.
type Capability interface {
	Hash(data []byte) hashid.Hash
	Sign(payload []byte) ([]byte, error)
	Verify(payload, signature, publicKey []byte) bool
	GenerateKeypair() (publicKey []byte, err error)
	Random(n int) ([]byte, error)
	LocalPublicKey() ([]byte, error)
}

// ErrCryptoUnavailable is returned when the underlying crypt instance is
// not initialized. It is the sentinel surfaced to callers per §7's
// CryptoUnavailable error kind.
var ErrCryptoUnavailable = errors.New("cryptocap: crypto capability unavailable")

// OuroborosCapability implements Capability over a node's *crypt.Crypt
// identity. It also keeps a keyring of the AsyncCrypt identities created
// via GenerateKeypair; neither Sign nor Verify reads that keyring: Sign
// always uses the node's own identity, and Verify works from the public
// key blob it is given.
type OuroborosCapability struct {
	mu      sync.RWMutex
	crypt   *crypt.Crypt
	keyring map[string]*keys.AsyncCrypt
}

// New wraps an already-initialized *crypt.Crypt, following the same
// loadOrCreateCrypt lifecycle the node package uses: callers are
// expected to have already called crypt.New or crypt.NewFromFile.
func New(c *crypt.Crypt) (*OuroborosCapability, error) {
	if c == nil {
		return nil, ErrCryptoUnavailable
	}
	return &OuroborosCapability{
		crypt:   c,
		keyring: make(map[string]*keys.AsyncCrypt),
	}, nil
}

// LoadOrCreate loads the node's identity from <dataDir>/trustcore.key,
// generating and persisting a fresh one on first run. A missing key
// file is not an error; every other stat failure is.
func LoadOrCreate(dataDir string) (*OuroborosCapability, error) {
	keyPath := filepath.Join(dataDir, identityFileName)

	_, err := os.Stat(keyPath)
	switch {
	case err == nil:
		c, loadErr := crypt.NewFromFile(keyPath)
		if loadErr != nil {
			return nil, fmt.Errorf("cryptocap: load key file %q: %w", keyPath, loadErr)
		}
		return New(c)

	case os.IsNotExist(err):
		c, genErr := newCryptSafely()
		if genErr != nil {
			return nil, fmt.Errorf("cryptocap: generate keys: %w", genErr)
		}
		if saveErr := c.Keys.SaveToFile(keyPath); saveErr != nil {
			return nil, fmt.Errorf("cryptocap: save key file %q: %w", keyPath, saveErr)
		}
		return New(c)

	default:
		return nil, fmt.Errorf("cryptocap: stat key file %q: %w", keyPath, err)
	}
}

// newCryptSafely wraps crypt.New with panic recovery: the upstream
// constructor panics on key-generation failure rather than returning
// an error.
func newCryptSafely() (c *crypt.Crypt, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("crypt.New panicked: %v", r)
		}
	}()
	c = crypt.New()
	return c, nil
}

// Hash computes the SHA-256 content hash of data.
func (o *OuroborosCapability) Hash(data []byte) hashid.Hash {
	return hashid.FromBytes(data)
}

// Sign signs payload with the node's local identity key.
func (o *OuroborosCapability) Sign(payload []byte) ([]byte, error) {
	if o.crypt == nil || o.crypt.Keys == nil {
		return nil, ErrCryptoUnavailable
	}
	sig, err := o.crypt.Keys.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("cryptocap: sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether signature is a valid signature over payload
// under publicKey, where publicKey is the opaque blob produced by
// ExportPublicKey. It is total: any decode failure yields false, never
// an error.
func (o *OuroborosCapability) Verify(payload, signature, publicKey []byte) bool {
	pub, err := ImportPublicKey(publicKey)
	if err != nil {
		return false
	}
	return pub.Verify(payload, signature)
}

// GenerateKeypair creates a new identity, keeps it (private material
// included) in the in-process keyring, and returns the exportable public
// key blob. Sign never signs with a keyring identity.
func (o *OuroborosCapability) GenerateKeypair() ([]byte, error) {
	identity, err := keys.NewAsyncCrypt()
	if err != nil {
		return nil, fmt.Errorf("cryptocap: generate keypair: %w", err)
	}
	pub, err := ExportPublicKey(identity.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("cryptocap: export generated public key: %w", err)
	}

	o.mu.Lock()
	o.keyring[string(pub)] = identity
	o.mu.Unlock()

	return pub, nil
}

// Random returns n cryptographically random bytes.
func (o *OuroborosCapability) Random(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptocap: random: %w", err)
	}
	return buf, nil
}

// LocalPublicKey returns the exported public key blob for the node's own
// identity.
func (o *OuroborosCapability) LocalPublicKey() ([]byte, error) {
	if o.crypt == nil || o.crypt.Keys == nil {
		return nil, ErrCryptoUnavailable
	}
	return ExportPublicKey(o.crypt.Keys.PublicKey())
}

// ExportPublicKey encodes a *keys.PublicKey into the opaque blob format
// this package treats as "public key bytes": len(KEM) || KEM ||
// len(Sign) || Sign.
func ExportPublicKey(pub *keys.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, errors.New("cryptocap: public key must not be nil")
	}
	kem, err := pub.MarshalBinaryKEM()
	if err != nil {
		return nil, fmt.Errorf("cryptocap: marshal KEM key: %w", err)
	}
	sign, err := pub.MarshalBinarySign()
	if err != nil {
		return nil, fmt.Errorf("cryptocap: marshal sign key: %w", err)
	}

	buf := make([]byte, 0, 8+len(kem)+len(sign))
	buf = appendLenPrefixed(buf, kem)
	buf = appendLenPrefixed(buf, sign)
	return buf, nil
}

// ImportPublicKey reverses ExportPublicKey.
func ImportPublicKey(blob []byte) (*keys.PublicKey, error) {
	kem, offset, err := readLenPrefixed(blob, 0)
	if err != nil {
		return nil, fmt.Errorf("cryptocap: read KEM key: %w", err)
	}
	sign, offset, err := readLenPrefixed(blob, offset)
	if err != nil {
		return nil, fmt.Errorf("cryptocap: read sign key: %w", err)
	}
	if offset != len(blob) {
		return nil, errors.New("cryptocap: public key blob has trailing bytes")
	}
	pub, err := keys.NewPublicKeyFromBinary(kem, sign)
	if err != nil {
		return nil, fmt.Errorf("cryptocap: build public key: %w", err)
	}
	return pub, nil
}

func appendLenPrefixed(buf []byte, field []byte) []byte {
	n := len(field)
	lenBuf := []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	buf = append(buf, lenBuf...)
	buf = append(buf, field...)
	return buf
}

func readLenPrefixed(data []byte, offset int) ([]byte, int, error) {
	if len(data[offset:]) < 4 {
		return nil, offset, errors.New("missing length prefix")
	}
	n := int(data[offset])<<24 | int(data[offset+1])<<16 | int(data[offset+2])<<8 | int(data[offset+3])
	offset += 4
	if len(data[offset:]) < n {
		return nil, offset, errors.New("field length exceeds remaining data")
	}
	field := make([]byte, n)
	copy(field, data[offset:offset+n])
	return field, offset + n, nil
}
