package contextstore

import "time"

// Snapshot is the serializable state of a Store: every round's metadata
// plus the compression bookkeeping. Archived raw content lives in the
// archive and is not part of the snapshot.
type Snapshot struct {
	Rounds            []Round   `json:"rounds"`
	NextIndex         int       `json:"next_index"`
	CompressionCount  int       `json:"compression_count"`
	LastCompressionAt time.Time `json:"last_compression_at"`
}

// Snapshot captures the current store state for checkpointing.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Rounds:            make([]Round, 0, len(s.rounds)),
		NextIndex:         s.nextIndex,
		CompressionCount:  s.compressionCount,
		LastCompressionAt: s.lastCompressionAt,
	}
	for _, r := range s.rounds {
		snap.Rounds = append(snap.Rounds, *r)
	}
	return snap
}

// Restore rebuilds a Store from a snapshot. The same archive that served
// the original store must be supplied for archived rounds to remain
// recoverable.
func Restore(snap *Snapshot, opts Options) (*Store, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextIndex = snap.NextIndex
	s.compressionCount = snap.CompressionCount
	s.lastCompressionAt = snap.LastCompressionAt
	for i := range snap.Rounds {
		r := snap.Rounds[i]
		s.rounds = append(s.rounds, &r)
	}
	return s, nil
}
