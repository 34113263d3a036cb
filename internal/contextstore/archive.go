package contextstore

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Archive stores relocated raw round content keyed by round index. Raw
// bytes are never discarded, only moved here when a round is demoted to
// the archived level.
type Archive interface {
	// Store persists raw content for a round index together with its
	// checksum. Storing the same index twice is an overwrite.
	Store(roundIndex int, raw string, checksum uint64) error

	// Load returns the raw content for a round index, verifying the
	// checksum recorded at store time.
	Load(roundIndex int) (string, error)
}

// Fingerprint computes the checksum used for archive integrity.
func Fingerprint(raw string) uint64 {
	return xxhash.Sum64String(raw)
}

type archiveEntry struct {
	raw      string
	checksum uint64
}

// MemoryArchive is the in-process Archive used when no durable archive is
// configured.
type MemoryArchive struct {
	mu      sync.RWMutex
	entries map[int]archiveEntry
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{entries: make(map[int]archiveEntry)}
}

func (a *MemoryArchive) Store(roundIndex int, raw string, checksum uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[roundIndex] = archiveEntry{raw: raw, checksum: checksum}
	return nil
}

func (a *MemoryArchive) Load(roundIndex int) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entry, ok := a.entries[roundIndex]
	if !ok {
		return "", &ArchiveMissError{RoundIndex: roundIndex}
	}
	if xxhash.Sum64String(entry.raw) != entry.checksum {
		return "", &ArchiveIntegrityError{RoundIndex: roundIndex}
	}
	return entry.raw, nil
}

var _ Archive = (*MemoryArchive)(nil)
