package contextstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSummarizer ignores the budget and always returns the same output.
// Used to provoke budget violations.
type fixedSummarizer struct {
	output string
}

func (f *fixedSummarizer) Summarize(_ context.Context, _ string, _ int) (string, error) {
	return f.output, nil
}

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Estimator == nil {
		opts.Estimator = RuneEstimator
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func TestAppendBelowThresholdStaysRaw(t *testing.T) {
	s := newTestStore(t, Options{MaxTokens: 100})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.AppendRound(ctx, strings.Repeat("a", 30))
		require.NoError(t, err)
	}

	assert.Equal(t, 60, s.EffectiveTokens())
	for _, r := range s.Rounds() {
		assert.Equal(t, LevelRaw, r.Level)
	}
	assert.Equal(t, 0, s.CompressionCount())
}

func TestThresholdCrossingCompressesOldest(t *testing.T) {
	// max 100, default fraction 0.8: the third 30-token round pushes the
	// total to 90 and the oldest round gets compressed.
	s := newTestStore(t, Options{MaxTokens: 100})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AppendRound(ctx, strings.Repeat("a", 30))
		require.NoError(t, err)
	}

	rounds := s.Rounds()
	require.Len(t, rounds, 3)
	assert.Equal(t, LevelCompressed, rounds[0].Level)
	assert.Equal(t, LevelRaw, rounds[1].Level)
	assert.Equal(t, LevelRaw, rounds[2].Level)
	assert.LessOrEqual(t, rounds[0].SummaryTokens, 10) // MaxTokens/10 default budget
	assert.LessOrEqual(t, s.EffectiveTokens(), 100)
	assert.Equal(t, 1, s.CompressionCount())
	assert.False(t, s.LastCompressionAt().IsZero())
}

func TestEffectiveViewOrderAndLevels(t *testing.T) {
	s := newTestStore(t, Options{MaxTokens: 100})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AppendRound(ctx, fmt.Sprintf("round %d %s", i+1, strings.Repeat("x", 25)))
		require.NoError(t, err)
	}

	view := s.EffectiveView()
	require.Len(t, view, 3)
	for i, seg := range view {
		assert.Equal(t, i+1, seg.RoundIndex)
	}
	// Raw rounds contribute their full content.
	assert.Contains(t, view[2].Content, "round 3")
}

func TestOversizedRoundForcedCompression(t *testing.T) {
	s := newTestStore(t, Options{MaxTokens: 100})
	ctx := context.Background()

	r, err := s.AppendRound(ctx, strings.Repeat("b", 500))
	require.NoError(t, err)

	assert.Equal(t, LevelCompressed, r.Level)
	assert.NotEmpty(t, r.Summary)
	assert.LessOrEqual(t, s.EffectiveTokens(), 100)
}

func TestBudgetExceededSurfaced(t *testing.T) {
	s := newTestStore(t, Options{
		MaxTokens:  100,
		Summarizer: &fixedSummarizer{output: strings.Repeat("c", 200)},
	})

	_, err := s.AppendRound(context.Background(), strings.Repeat("b", 300))
	require.Error(t, err)

	var budgetErr *BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, 1, budgetErr.RoundIndex)
	assert.Equal(t, 100, budgetErr.MaxTokens)
}

func TestCompressionIdempotent(t *testing.T) {
	s := newTestStore(t, Options{MaxTokens: 100})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.AppendRound(ctx, strings.Repeat("d", 30))
		require.NoError(t, err)
	}
	require.Greater(t, s.CompressionCount(), 0)

	before := s.Rounds()
	count := s.CompressionCount()

	require.NoError(t, s.MaybeCompress(ctx))
	require.NoError(t, s.MaybeCompress(ctx))

	after := s.Rounds()
	assert.Equal(t, count, s.CompressionCount())
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Level, after[i].Level)
		assert.Equal(t, before[i].Summary, after[i].Summary)
	}
}

func TestEffectiveViewNeverExceedsBudget(t *testing.T) {
	// Mixed round sizes, including several larger than the whole budget.
	s := newTestStore(t, Options{MaxTokens: 100})
	ctx := context.Background()

	for i := 1; i <= 40; i++ {
		_, err := s.AppendRound(ctx, strings.Repeat("e", i*7))
		require.NoError(t, err)
		assert.LessOrEqual(t, s.EffectiveTokens(), 100, "after round %d", i)
	}
	assert.Equal(t, 40, s.Len())
}

func TestArchiveDemotionAndRecovery(t *testing.T) {
	archive := NewMemoryArchive()
	s := newTestStore(t, Options{
		MaxTokens:           40,
		ThresholdFraction:   0.5,
		SummaryBudgetTokens: 12,
		ArchiveAfterRounds:  2,
		Archive:             archive,
	})
	ctx := context.Background()

	contents := []string{"round-one!", "round-two!", "round-iii!"}
	for _, c := range contents {
		_, err := s.AppendRound(ctx, c)
		require.NoError(t, err)
	}

	rounds := s.Rounds()
	require.Len(t, rounds, 3)
	assert.Equal(t, LevelArchived, rounds[0].Level)
	assert.Empty(t, rounds[0].RawContent)
	assert.NotEmpty(t, rounds[0].Summary)

	// Raw bytes were relocated, not lost.
	raw, err := s.RecoverRaw(1)
	require.NoError(t, err)
	assert.Equal(t, "round-one!", raw)

	raw, err = s.RecoverRaw(3)
	require.NoError(t, err)
	assert.Equal(t, "round-iii!", raw)

	_, err = s.RecoverRaw(99)
	var miss *ArchiveMissError
	assert.ErrorAs(t, err, &miss)
}

func TestLevelsOnlyMoveForward(t *testing.T) {
	s := newTestStore(t, Options{MaxTokens: 100})
	ctx := context.Background()

	levels := make(map[int]Level)
	for i := 1; i <= 20; i++ {
		_, err := s.AppendRound(ctx, strings.Repeat("f", 25))
		require.NoError(t, err)
		for _, r := range s.Rounds() {
			prev, seen := levels[r.Index]
			if seen {
				assert.GreaterOrEqual(t, r.Level, prev, "round %d regressed from %s to %s", r.Index, prev, r.Level)
			}
			levels[r.Index] = r.Level
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	archive := NewMemoryArchive()
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

	snap := s.Snapshot()
	restored, err := Restore(snap, Options{
		MaxTokens:           40,
		ThresholdFraction:   0.5,
		SummaryBudgetTokens: 12,
		ArchiveAfterRounds:  2,
		Estimator:           RuneEstimator,
		Archive:             archive,
	})
	require.NoError(t, err)

	assert.Equal(t, s.EffectiveTokens(), restored.EffectiveTokens())
	assert.Equal(t, s.EffectiveView(), restored.EffectiveView())
	assert.Equal(t, s.CompressionCount(), restored.CompressionCount())

	raw, err := restored.RecoverRaw(1)
	require.NoError(t, err)
	assert.Equal(t, "round-one!", raw)

	// The restored store keeps appending where the original left off.
	r, err := restored.AppendRound(ctx, "round-four")
	require.NoError(t, err)
	assert.Equal(t, 4, r.Index)
}

func TestNewRejectsZeroBudget(t *testing.T) {
	_, err := New(Options{MaxTokens: 0})
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
