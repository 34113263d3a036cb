// Package summarizer provides bounded-size summaries of round content.
//
// Two implementations exist: HeadTail, a deterministic extractive trim
// suitable for tests and offline operation, and LLM, a semantic merge
// backed by a language model that falls back to HeadTail on failure.
package summarizer

import (
	"context"
	"strings"
	"unicode/utf8"
)

// TokenEstimator estimates the token count of a piece of text.
type TokenEstimator func(text string) int

// HeuristicEstimator approximates one token per four runes.
func HeuristicEstimator(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return (runes + 3) / 4
}

const headTailSeparator = "\n[...]\n"

// HeadTail produces a summary by keeping the head and tail of the content
// and dropping the middle. Output depends only on the input and the
// budget, so summaries are idempotent and reproducible.
type HeadTail struct {
	// Estimator measures candidate summaries against the budget.
	// Defaults to HeuristicEstimator.
	Estimator TokenEstimator
}

// NewHeadTail creates a HeadTail summarizer with the given estimator.
func NewHeadTail(estimator TokenEstimator) *HeadTail {
	return &HeadTail{Estimator: estimator}
}

// Summarize trims raw content to fit budgetTokens. Content that already
// fits is returned unchanged.
func (h *HeadTail) Summarize(_ context.Context, raw string, budgetTokens int) (string, error) {
	est := h.Estimator
	if est == nil {
		est = HeuristicEstimator
	}
	if budgetTokens < 0 {
		budgetTokens = 0
	}
	if est(raw) <= budgetTokens {
		return raw, nil
	}

	runes := []rune(raw)
	keep := len(runes)
	for keep > 0 {
		head := strings.TrimRight(string(runes[:(keep+1)/2]), " \t\n")
		tail := strings.TrimLeft(string(runes[len(runes)-keep/2:]), " \t\n")
		candidate := head + headTailSeparator + tail
		if est(candidate) <= budgetTokens {
			return candidate, nil
		}
		// Shrink multiplicatively so large inputs converge quickly.
		keep = keep*9/10 - 1
	}

	return "", nil
}
