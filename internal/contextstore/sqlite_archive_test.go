package contextstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	archive, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "state", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	archive := newSQLiteArchive(t)

	raw := "round one raw content"
	require.NoError(t, archive.Store(1, raw, Fingerprint(raw)))

	loaded, err := archive.Load(1)
	require.NoError(t, err)
	assert.Equal(t, raw, loaded)
}

func TestSQLiteArchiveOverwritesOnConflict(t *testing.T) {
	archive := newSQLiteArchive(t)

	require.NoError(t, archive.Store(1, "first", Fingerprint("first")))
	require.NoError(t, archive.Store(1, "second", Fingerprint("second")))

	loaded, err := archive.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "second", loaded)
}

func TestSQLiteArchiveMissingIndex(t *testing.T) {
	archive := newSQLiteArchive(t)

	_, err := archive.Load(7)
	var miss *ArchiveMissError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, 7, miss.RoundIndex)
}

func TestSQLiteArchiveChecksumMismatch(t *testing.T) {
	archive := newSQLiteArchive(t)

	// A checksum recorded for different bytes must fail verification.
	require.NoError(t, archive.Store(1, "tampered content", Fingerprint("original content")))

	_, err := archive.Load(1)
	var integrity *ArchiveIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, 1, integrity.RoundIndex)
}

func TestStoreWithSQLiteArchive(t *testing.T) {
	archive := newSQLiteArchive(t)
	s := newTestStore(t, Options{
		MaxTokens:           40,
		ThresholdFraction:   0.5,
		SummaryBudgetTokens: 12,
		ArchiveAfterRounds:  2,
		Archive:             archive,
	})
	ctx := context.Background()

	for _, c := range []string{"round-one!", "round-two!", "round-iii!"} {
		_, err := s.AppendRound(ctx, c)
		require.NoError(t, err)
	}

	rounds := s.Rounds()
	require.Len(t, rounds, 3)
	assert.Equal(t, LevelArchived, rounds[0].Level)

	raw, err := s.RecoverRaw(1)
	require.NoError(t, err)
	assert.Equal(t, "round-one!", raw)
}
