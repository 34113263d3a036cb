package contextstore

import "time"

// Level is the level-of-detail tier at which a round is retained.
// It only ever moves forward: raw -> compressed -> archived.
type Level int

const (
	// LevelRaw retains the full-fidelity record.
	LevelRaw Level = iota
	// LevelCompressed retains raw content plus a bounded summary; the
	// summary is what reaches the effective view.
	LevelCompressed
	// LevelArchived retains only the summary in the store; the raw
	// content has been relocated to the archive index.
	LevelArchived
)

// String returns a human-readable level name.
func (l Level) String() string {
	switch l {
	case LevelRaw:
		return "raw"
	case LevelCompressed:
		return "compressed"
	case LevelArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// Round is one iteration's recorded slice of interaction history.
type Round struct {
	// Index increases monotonically across the session.
	Index int `json:"index"`

	// RawContent is the full-fidelity record. Empty once archived; the
	// archive index then owns the bytes.
	RawContent string `json:"raw_content,omitempty"`

	// Summary is the compressed rendition, set once the round has been
	// through compression.
	Summary string `json:"summary,omitempty"`

	// Level is the current level of detail.
	Level Level `json:"level"`

	// RawTokens and SummaryTokens are the estimator's measurements.
	RawTokens     int `json:"raw_tokens"`
	SummaryTokens int `json:"summary_tokens"`

	// Checksum fingerprints the raw content for archive integrity.
	Checksum uint64 `json:"checksum"`

	CreatedAt    time.Time `json:"created_at"`
	CompressedAt time.Time `json:"compressed_at,omitempty"`
}

// effectiveContent is what the round contributes to the effective view.
func (r *Round) effectiveContent() string {
	if r.Level == LevelRaw {
		return r.RawContent
	}
	return r.Summary
}

// effectiveTokens is the round's contribution to the view size.
func (r *Round) effectiveTokens() int {
	if r.Level == LevelRaw {
		return r.RawTokens
	}
	return r.SummaryTokens
}

// Segment is one entry of the effective view.
type Segment struct {
	RoundIndex int
	Level      Level
	Content    string
}
