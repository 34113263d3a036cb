package contextstore

import "fmt"

// BudgetExceededError reports a round whose content cannot be brought
// under the configured token budget even after forced compression. It is
// surfaced to the caller rather than silently truncated.
type BudgetExceededError struct {
	RoundIndex int
	Tokens     int
	MaxTokens  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("context store: round %d needs %d tokens even after compression, budget is %d",
		e.RoundIndex, e.Tokens, e.MaxTokens)
}

// ArchiveIntegrityError reports archived raw content whose checksum no
// longer matches the value recorded at archival time.
type ArchiveIntegrityError struct {
	RoundIndex int
}

func (e *ArchiveIntegrityError) Error() string {
	return fmt.Sprintf("context store: archived content for round %d failed checksum verification", e.RoundIndex)
}

// ArchiveMissError reports a round index absent from the archive.
type ArchiveMissError struct {
	RoundIndex int
}

func (e *ArchiveMissError) Error() string {
	return fmt.Sprintf("context store: no archived content for round %d", e.RoundIndex)
}
