// Package contextstore keeps the bounded, multi-level-of-detail history
// of loop rounds. The store owns compression and archival policy; the
// only projection it ever exposes to reasoning is the effective view.
package contextstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/agentloop/internal/logger"
	"github.com/codefionn/agentloop/internal/summarizer"
)

// Summarizer produces a bounded-size summary of raw round content. It
// must be deterministic at a fixed input so compression is testable.
type Summarizer interface {
	Summarize(ctx context.Context, raw string, budgetTokens int) (string, error)
}

// Options configures a Store.
type Options struct {
	// MaxTokens bounds the effective view.
	MaxTokens int

	// ThresholdFraction of MaxTokens at which compression starts.
	// Defaults to 0.8.
	ThresholdFraction float64

	// SummaryBudgetTokens is the per-round budget handed to the
	// summarizer. Defaults to MaxTokens/10, never above MaxTokens.
	SummaryBudgetTokens int

	// ArchiveAfterRounds demotes compressed rounds to archived once they
	// trail the newest round by this many indices. Defaults to 6.
	ArchiveAfterRounds int

	Estimator  Estimator
	Summarizer Summarizer
	Archive    Archive
	Logger     *logger.Logger
}

// Store is the ordered sequence of rounds plus the running token budget.
// One store belongs to exactly one session.
type Store struct {
	mu sync.Mutex

	rounds    []*Round
	nextIndex int

	maxTokens     int
	threshold     int
	summaryBudget int
	archiveAfter  int

	estimator  Estimator
	summarizer Summarizer
	archive    Archive
	log        *logger.Logger

	compressionCount  int
	lastCompressionAt time.Time
}

// New creates a Store. MaxTokens must be positive; everything else has
// defaults.
func New(opts Options) (*Store, error) {
	if opts.MaxTokens < 1 {
		return nil, fmt.Errorf("context store: MaxTokens must be >= 1, got %d", opts.MaxTokens)
	}

	fraction := opts.ThresholdFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.8
	}

	estimator := opts.Estimator
	if estimator == nil {
		estimator = HeuristicEstimator
	}

	sum := opts.Summarizer
	if sum == nil {
		sum = summarizer.NewHeadTail(summarizer.TokenEstimator(estimator))
	}

	archive := opts.Archive
	if archive == nil {
		archive = NewMemoryArchive()
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	budget := opts.SummaryBudgetTokens
	if budget < 1 {
		budget = opts.MaxTokens / 10
	}
	if budget < 1 {
		budget = 1
	}
	if budget > opts.MaxTokens {
		budget = opts.MaxTokens
	}

	archiveAfter := opts.ArchiveAfterRounds
	if archiveAfter < 1 {
		archiveAfter = 6
	}

	return &Store{
		nextIndex:     1,
		maxTokens:     opts.MaxTokens,
		threshold:     int(fraction * float64(opts.MaxTokens)),
		summaryBudget: budget,
		archiveAfter:  archiveAfter,
		estimator:     estimator,
		summarizer:    sum,
		archive:       archive,
		log:           log.WithPrefix("context"),
	}, nil
}

// AppendRound records the raw content of one round and runs the
// compression policy. A round whose raw content alone exceeds the budget
// is force-compressed immediately; if even its summary cannot fit,
// BudgetExceededError is returned.
func (s *Store) AppendRound(ctx context.Context, rawContent string) (*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Round{
		Index:      s.nextIndex,
		RawContent: rawContent,
		Level:      LevelRaw,
		RawTokens:  s.estimator(rawContent),
		Checksum:   Fingerprint(rawContent),
		CreatedAt:  time.Now(),
	}
	s.nextIndex++
	s.rounds = append(s.rounds, r)

	// A single oversized round does not wait for the threshold.
	if r.RawTokens > s.maxTokens {
		s.log.Debug("round %d exceeds budget on its own (%d > %d tokens), forcing compression",
			r.Index, r.RawTokens, s.maxTokens)
		if err := s.compressRound(ctx, r); err != nil {
			return r, err
		}
		if r.SummaryTokens > s.maxTokens {
			return r, &BudgetExceededError{RoundIndex: r.Index, Tokens: r.SummaryTokens, MaxTokens: s.maxTokens}
		}
	}

	if err := s.maybeCompressLocked(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// MaybeCompress applies the compression and archival policy. Appends call
// it automatically; it is exported so a resumed session can re-establish
// the invariant after configuration changes.
func (s *Store) MaybeCompress(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maybeCompressLocked(ctx)
}

func (s *Store) maybeCompressLocked(ctx context.Context) error {
	// Compress oldest raw rounds first until back under the threshold.
	for s.effectiveTokensLocked() > s.threshold {
		target := s.oldestRawLocked()
		if target == nil {
			break
		}
		if err := s.compressRound(ctx, target); err != nil {
			return err
		}
	}

	if err := s.archiveOldLocked(); err != nil {
		return err
	}

	return s.enforceBudgetLocked(ctx)
}

func (s *Store) oldestRawLocked() *Round {
	for _, r := range s.rounds {
		if r.Level == LevelRaw {
			return r
		}
	}
	return nil
}

// compressRound moves one round from raw to compressed. Calling it on an
// already-compressed or archived round is a no-op.
func (s *Store) compressRound(ctx context.Context, r *Round) error {
	if r.Level != LevelRaw {
		return nil
	}

	summary, err := s.summarizer.Summarize(ctx, r.RawContent, s.summaryBudget)
	if err != nil {
		return fmt.Errorf("context store: compressing round %d: %w", r.Index, err)
	}

	r.Summary = summary
	r.SummaryTokens = s.estimator(summary)
	r.Level = LevelCompressed
	r.CompressedAt = time.Now()

	s.compressionCount++
	s.lastCompressionAt = r.CompressedAt
	s.log.Debug("compressed round %d: %d -> %d tokens", r.Index, r.RawTokens, r.SummaryTokens)
	return nil
}

// archiveOldLocked demotes compressed rounds that have aged past the
// archive horizon: the raw bytes move to the archive index, the summary
// stays behind for reconstruction.
func (s *Store) archiveOldLocked() error {
	latest := s.nextIndex - 1
	for _, r := range s.rounds {
		if r.Level != LevelCompressed {
			continue
		}
		if latest-r.Index < s.archiveAfter {
			continue
		}
		if err := s.archive.Store(r.Index, r.RawContent, r.Checksum); err != nil {
			return fmt.Errorf("context store: archiving round %d: %w", r.Index, err)
		}
		r.RawContent = ""
		r.Level = LevelArchived
		s.log.Debug("archived round %d", r.Index)
	}
	return nil
}

// enforceBudgetLocked re-summarizes rounds to a shrinking per-round
// budget when the view is still over MaxTokens with everything
// compressed. This is a size pass, not a level change, so compression
// idempotence is preserved.
func (s *Store) enforceBudgetLocked(ctx context.Context) error {
	total := s.effectiveTokensLocked()
	if total <= s.maxTokens || len(s.rounds) == 0 {
		return nil
	}

	perRound := s.maxTokens / len(s.rounds)
	if perRound < 1 {
		perRound = 1
	}

	for _, r := range s.rounds {
		if total <= s.maxTokens {
			break
		}
		if r.Level == LevelRaw {
			if err := s.compressRound(ctx, r); err != nil {
				return err
			}
			total = s.effectiveTokensLocked()
		}
		if r.SummaryTokens <= perRound {
			continue
		}

		raw := r.RawContent
		if r.Level == LevelArchived {
			loaded, err := s.archive.Load(r.Index)
			if err != nil {
				return err
			}
			raw = loaded
		}

		summary, err := s.summarizer.Summarize(ctx, raw, perRound)
		if err != nil {
			return fmt.Errorf("context store: shrinking round %d: %w", r.Index, err)
		}

		total -= r.SummaryTokens
		r.Summary = summary
		r.SummaryTokens = s.estimator(summary)
		total += r.SummaryTokens
	}

	if total > s.maxTokens {
		worst := s.rounds[0]
		for _, r := range s.rounds {
			if r.effectiveTokens() > worst.effectiveTokens() {
				worst = r
			}
		}
		return &BudgetExceededError{RoundIndex: worst.Index, Tokens: worst.effectiveTokens(), MaxTokens: s.maxTokens}
	}
	return nil
}

// EffectiveView is the ordered sequence of content actually fed to
// downstream reasoning: summaries for compressed and archived rounds,
// full content for raw rounds. Nothing else ever leaves the store.
func (s *Store) EffectiveView() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := make([]Segment, 0, len(s.rounds))
	for _, r := range s.rounds {
		view = append(view, Segment{RoundIndex: r.Index, Level: r.Level, Content: r.effectiveContent()})
	}
	return view
}

// EffectiveTokens is the current size of the effective view.
func (s *Store) EffectiveTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveTokensLocked()
}

func (s *Store) effectiveTokensLocked() int {
	total := 0
	for _, r := range s.rounds {
		total += r.effectiveTokens()
	}
	return total
}

// Rounds returns copies of the round metadata in order.
func (s *Store) Rounds() []Round {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		out = append(out, *r)
	}
	return out
}

// Len returns the number of recorded rounds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rounds)
}

// RecoverRaw returns the full-fidelity content of any round, reading the
// archive for rounds that have been demoted. Raw content is relocated,
// never deleted, so this succeeds for every recorded round.
func (s *Store) RecoverRaw(roundIndex int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rounds {
		if r.Index != roundIndex {
			continue
		}
		if r.Level == LevelArchived {
			return s.archive.Load(roundIndex)
		}
		return r.RawContent, nil
	}
	return "", &ArchiveMissError{RoundIndex: roundIndex}
}

// CompressionCount is the number of round compressions performed.
func (s *Store) CompressionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compressionCount
}

// LastCompressionAt is the timestamp of the most recent compression, zero
// if none has happened.
func (s *Store) LastCompressionAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCompressionAt
}
