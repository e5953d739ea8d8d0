// Package persistence implements the durable substrate behind the
// trust graph store: one badger key per certificate, profile, and
// person-rights aggregate, each self-checked with a stored content
// hash so a corrupt slot is detected and skipped rather than trusted.
// It generalizes a content-addressed chunk store to the trust core's
// three named record kinds.
package persistence

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	chunker "github.com/ipfs/boxo/chunker"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/google/fscrypt/filesystem"

	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/trustgraph"
	"github.com/juergengeck/trustcore/pkg/wire"
)

var log *logrus.Logger

const exportChunkSize = 1 << 20 // 1MiB

var (
	// ErrStorageFull is returned by any write when the configured
	// minimum free space threshold has been crossed.
	ErrStorageFull = errors.New("persistence: storage full")
	// ErrCorruptSlot is returned by slot-level reads whose stored
	// checksum does not match its content; callers of LoadAll treat
	// this as recoverable and continue past it.
	ErrCorruptSlot = errors.New("persistence: corrupt slot")
	// ErrNotFound mirrors the external interface's read(handle, slot)
	// -> NotFound outcome.
	ErrNotFound = errors.New("persistence: slot not found")
)

const (
	certPrefix   = "cert:"
	profilePrefix = "profile:"
	rightsPrefix = "rights:"
)

// Config holds the badger storage settings, the free-space threshold
// checked before each write, and the logger.
type Config struct {
	Path             string
	MinimumFreeSpace int // in GB
	Logger           *logrus.Logger
	// InMemory opens badger with WithInMemory(true), bypassing Path
	// entirely. Used by tests that need a real Store without a
	// filesystem.
	InMemory bool
}

// Store is the badger-backed persistence substrate for a trust graph.
type Store struct {
	config       Config
	db           *badger.DB
	readCounter  uint64
	writeCounter uint64
}

// Open opens (creating if absent) the badger database at config.Path.
func Open(config Config) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log = config.Logger

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100
	opts.SyncWrites = false
	if config.InMemory {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persistence: open badger at %q: %w", config.Path, err)
	}
	return &Store{config: config, db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if err := s.Clean(); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Warn("persistence: clean before close failed")
	}
	return s.db.Close()
}

// Clean syncs, flattens, and runs value-log GC in sequence.
func (s *Store) Clean() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("persistence: sync: %w", err)
	}
	if err := s.db.Flatten(runtime.NumCPU()); err != nil {
		return fmt.Errorf("persistence: flatten: %w", err)
	}
	if err := s.db.RunValueLogGC(0.1); err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("persistence: value log gc: %w", err)
	}
	return nil
}

func withChecksum(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	out := make([]byte, 0, len(sum)+len(payload))
	out = append(out, sum[:]...)
	out = append(out, payload...)
	return out
}

func stripChecksum(slotName string, stored []byte) ([]byte, error) {
	if len(stored) < sha256.Size {
		return nil, fmt.Errorf("%w: %s: truncated", ErrCorruptSlot, slotName)
	}
	want := stored[:sha256.Size]
	payload := stored[sha256.Size:]
	got := sha256.Sum256(payload)
	if !bytes.Equal(want, got[:]) {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorruptSlot, slotName)
	}
	return payload, nil
}

func (s *Store) writeSlot(key []byte, payload []byte) error {
	if full, err := s.isStorageFull(); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Warn("persistence: disk usage check failed")
	} else if full {
		return ErrStorageFull
	}

	atomic.AddUint64(&s.writeCounter, 1)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, withChecksum(payload))
	})
}

func (s *Store) readSlot(key []byte) ([]byte, error) {
	atomic.AddUint64(&s.readCounter, 1)
	var stored []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		stored, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: read %q: %w", key, err)
	}
	return stripChecksum(string(key), stored)
}

// SaveCertificate writes cert to its own named slot, keyed by cert_id.
func (s *Store) SaveCertificate(c *model.Certificate) error {
	encoded, err := wire.EncodeCertificate(c)
	if err != nil {
		return fmt.Errorf("persistence: encode certificate: %w", err)
	}
	return s.writeSlot([]byte(certPrefix+c.CertID.String()), encoded)
}

// SaveProfile writes p to its own named slot, keyed by profile_id.
func (s *Store) SaveProfile(p *model.Profile) error {
	encoded, err := wire.EncodeProfile(p)
	if err != nil {
		return fmt.Errorf("persistence: encode profile: %w", err)
	}
	return s.writeSlot([]byte(profilePrefix+p.ProfileID.String()), encoded)
}

// SaveRights writes the derived PersonRights aggregate for person to its
// own slot. LoadAll does not read rights slots back and nothing else in
// this package consults them; after a load the rights engine recomputes
// rights from the admitted certificates.
func (s *Store) SaveRights(person hashid.PersonID, rights model.PersonRights) error {
	return s.writeSlot([]byte(rightsPrefix+string(person)), encodeRights(rights))
}

func encodeRights(r model.PersonRights) []byte {
	var b byte
	if r.MayEndorseForEverybody {
		b |= 1
	}
	if r.MayEndorseForSelf {
		b |= 2
	}
	return []byte{b}
}

func decodeRights(data []byte) (model.PersonRights, error) {
	if len(data) != 1 {
		return model.PersonRights{}, errors.New("persistence: malformed rights slot")
	}
	return model.PersonRights{
		MayEndorseForEverybody: data[0]&1 != 0,
		MayEndorseForSelf:      data[0]&2 != 0,
	}, nil
}

// LoadResult reports how many slots of each kind were loaded and how
// many were skipped as corrupt, matching §7's CorruptSlot policy:
// recovered locally, counted, never fatal to the load.
type LoadResult struct {
	CertificatesLoaded int
	CertificatesSkipped int
	ProfilesLoaded      int
	ProfilesSkipped     int
}

// LoadAll reads every cert: and profile: slot, admits each into store,
// and returns a count of what loaded versus what was skipped as
// corrupt. It does not load rights: slots directly — the rights engine
// recomputes rights from admitted certificates once wired, per §9's
// "trusted flag is non-authoritative" resolution applying equally to
// any persisted derived value.
func LoadAll(s *Store, target *trustgraph.Store) (LoadResult, error) {
	var result LoadResult

	certSlots, err := s.enumerate([]byte(certPrefix))
	if err != nil {
		return result, fmt.Errorf("persistence: enumerate certificates: %w", err)
	}
	for _, kv := range certSlots {
		payload, err := stripChecksum(string(kv.key), kv.value)
		if err != nil {
			log.WithFields(logrus.Fields{"slot": string(kv.key)}).Warn("persistence: skipping corrupt certificate slot")
			result.CertificatesSkipped++
			continue
		}
		cert, err := wire.DecodeCertificate(payload)
		if err != nil {
			log.WithFields(logrus.Fields{"slot": string(kv.key)}).Warn("persistence: skipping malformed certificate slot")
			result.CertificatesSkipped++
			continue
		}
		if err := target.AdmitCertificate(cert); err != nil {
			log.WithFields(logrus.Fields{"slot": string(kv.key), "error": err}).Warn("persistence: certificate rejected on load")
			result.CertificatesSkipped++
			continue
		}
		result.CertificatesLoaded++
	}

	profileSlots, err := s.enumerate([]byte(profilePrefix))
	if err != nil {
		return result, fmt.Errorf("persistence: enumerate profiles: %w", err)
	}
	for _, kv := range profileSlots {
		payload, err := stripChecksum(string(kv.key), kv.value)
		if err != nil {
			log.WithFields(logrus.Fields{"slot": string(kv.key)}).Warn("persistence: skipping corrupt profile slot")
			result.ProfilesSkipped++
			continue
		}
		profile, err := wire.DecodeProfile(payload)
		if err != nil {
			log.WithFields(logrus.Fields{"slot": string(kv.key)}).Warn("persistence: skipping malformed profile slot")
			result.ProfilesSkipped++
			continue
		}
		if err := target.AdmitProfile(profile); err != nil && !errors.Is(err, trustgraph.ErrStaleProfile) {
			log.WithFields(logrus.Fields{"slot": string(kv.key), "error": err}).Warn("persistence: profile rejected on load")
			result.ProfilesSkipped++
			continue
		}
		result.ProfilesLoaded++
	}

	target.InvalidateCaches()
	return result, nil
}

type keyValue struct {
	key   []byte
	value []byte
}

func (s *Store) enumerate(prefix []byte) ([]keyValue, error) {
	var out []keyValue
	atomic.AddUint64(&s.readCounter, 1)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, keyValue{key: key, value: value})
		}
		return nil
	})
	return out, err
}

// RemoveCertificate deletes a certificate's slot.
func (s *Store) RemoveCertificate(certID hashid.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(certPrefix + certID.String()))
	})
}

func (s *Store) isStorageFull() (bool, error) {
	if s.config.MinimumFreeSpace <= 0 {
		return false, nil
	}
	usage, err := disk.Usage(s.config.Path)
	if err != nil {
		return false, fmt.Errorf("persistence: disk usage: %w", err)
	}
	mnt, err := filesystem.FindMount(s.config.Path)
	if err != nil {
		return false, fmt.Errorf("persistence: find mount: %w", err)
	}
	freeGB := float64(usage.Free) / 1e9
	log.WithFields(logrus.Fields{
		"path":        s.config.Path,
		"mount":       mnt.Path,
		"device":      mnt.Device,
		"free_gb":     fmt.Sprintf("%.2f", freeGB),
		"used_percent": fmt.Sprintf("%.1f", usage.UsedPercent),
	}).Debug("persistence: disk usage")
	return freeGB < float64(s.config.MinimumFreeSpace), nil
}

// ExportSnapshot streams every admitted certificate and profile in src
// through a fixed-size chunker into w, optionally xz-compressed. Each
// record is framed with a one-byte kind and a 4-byte big-endian length,
// so ImportSnapshot can split the stream back into records one frame at
// a time; the chunks themselves carry no framing. The whole framed
// record set is assembled in memory before the first chunk is written.
func ExportSnapshot(src *trustgraph.Store, w io.Writer, compress bool) error {
	var rawBuf bytes.Buffer
	for _, c := range src.AllCertificates() {
		encoded, err := wire.EncodeCertificate(c)
		if err != nil {
			return fmt.Errorf("persistence: export certificate: %w", err)
		}
		writeFramed(&rawBuf, 'C', encoded)
	}
	for _, p := range src.AllLatestProfiles() {
		encoded, err := wire.EncodeProfile(p)
		if err != nil {
			return fmt.Errorf("persistence: export profile: %w", err)
		}
		writeFramed(&rawBuf, 'P', encoded)
	}

	var dest io.Writer = w
	var xzWriter *xz.Writer
	if compress {
		xw, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("persistence: open xz writer: %w", err)
		}
		xzWriter = xw
		dest = xw
	}

	splitter := chunker.NewSizeSplitter(&rawBuf, int64(exportChunkSize))
	for {
		chunk, err := splitter.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("persistence: chunk snapshot: %w", err)
		}
		if _, err := dest.Write(chunk); err != nil {
			return fmt.Errorf("persistence: write snapshot chunk: %w", err)
		}
	}

	if xzWriter != nil {
		if err := xzWriter.Close(); err != nil {
			return fmt.Errorf("persistence: close xz writer: %w", err)
		}
	}
	return nil
}

// ImportSnapshot reads a stream produced by ExportSnapshot and admits
// every record into dst.
func ImportSnapshot(dst *trustgraph.Store, r io.Reader, compressed bool) (LoadResult, error) {
	var result LoadResult

	var source io.Reader = r
	if compressed {
		xr, err := xz.NewReader(r)
		if err != nil {
			return result, fmt.Errorf("persistence: open xz reader: %w", err)
		}
		source = xr
	}

	for {
		kind, payload, err := readFramed(source)
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("persistence: read snapshot frame: %w", err)
		}
		switch kind {
		case 'C':
			cert, err := wire.DecodeCertificate(payload)
			if err != nil {
				result.CertificatesSkipped++
				continue
			}
			if err := dst.AdmitCertificate(cert); err != nil {
				result.CertificatesSkipped++
				continue
			}
			result.CertificatesLoaded++
		case 'P':
			profile, err := wire.DecodeProfile(payload)
			if err != nil {
				result.ProfilesSkipped++
				continue
			}
			if err := dst.AdmitProfile(profile); err != nil && !errors.Is(err, trustgraph.ErrStaleProfile) {
				result.ProfilesSkipped++
				continue
			}
			result.ProfilesLoaded++
		default:
			return result, fmt.Errorf("persistence: unknown snapshot frame kind %q", kind)
		}
	}

	dst.InvalidateCaches()
	return result, nil
}

func writeFramed(buf *bytes.Buffer, kind byte, payload []byte) {
	buf.WriteByte(kind)
	var lenBuf [4]byte
	n := len(payload)
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	buf.Write(lenBuf[:])
	buf.Write(payload)
}

// maxFramePayloadSize bounds a single frame's declared length. Real
// certificates and profiles are a few kilobytes at most; this rejects a
// forged length prefix outright instead of trusting it enough to
// allocate on its word.
const maxFramePayloadSize = 16 << 20 // 16MiB

func readFramed(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	kind := header[0]
	n := uint32(header[1])<<24 | uint32(header[2])<<16 | uint32(header[3])<<8 | uint32(header[4])
	if n > maxFramePayloadSize {
		return 0, nil, fmt.Errorf("persistence: frame length %d exceeds maximum %d", n, maxFramePayloadSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("persistence: truncated frame: %w", err)
	}
	return kind, payload, nil
}

// DecodeRightsSlot exposes the slot codec for callers (tests, tooling)
// that need to inspect a persisted rights aggregate directly.
func DecodeRightsSlot(data []byte) (model.PersonRights, error) {
	return decodeRights(data)
}
