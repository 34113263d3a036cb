package contextstore

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator turns text into a deterministic token count. The budget is an
// approximation; what matters is that the same input always yields the
// same count.
type Estimator func(text string) int

// RuneEstimator counts one token per rune. Exact and fast; used in tests
// and wherever reproducibility matters more than model fidelity.
func RuneEstimator(text string) int {
	return utf8.RuneCountInString(text)
}

// HeuristicEstimator approximates one token per four runes.
func HeuristicEstimator(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return (runes + 3) / 4
}

// NewTiktokenEstimator returns an estimator using the encoding for the
// given model, falling back to cl100k_base and finally to the rune/4
// heuristic when no encoding is available.
func NewTiktokenEstimator(modelID string) Estimator {
	encoder, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		encoder, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return HeuristicEstimator
		}
	}

	return func(text string) int {
		if text == "" {
			return 0
		}
		return len(encoder.Encode(text, nil, nil))
	}
}
