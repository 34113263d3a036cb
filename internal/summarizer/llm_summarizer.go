package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
)

const summaryPrompt = `Summarize the following agent interaction record.
Preserve: the goal being pursued, actions taken and their outcomes,
errors encountered, and any identifiers (names, paths, ids) needed to
continue the work. Stay under %d tokens. Output only the summary.

---
%s`

// LLM summarizes round content through a language model. The model output
// is trimmed to the budget with a HeadTail pass, and any model failure
// falls back to HeadTail entirely so compression never blocks the loop.
type LLM struct {
	client   llm.Client
	fallback *HeadTail
	log      *logger.Logger

	// Temperature for the summarization call. Zero keeps the call as
	// deterministic as the provider allows.
	Temperature float64
}

// NewLLM creates an LLM summarizer.
func NewLLM(client llm.Client, estimator TokenEstimator, log *logger.Logger) *LLM {
	if log == nil {
		log = logger.Discard()
	}
	return &LLM{
		client:   client,
		fallback: NewHeadTail(estimator),
		log:      log,
	}
}

// Summarize produces a bounded-size semantic summary of raw.
func (s *LLM) Summarize(ctx context.Context, raw string, budgetTokens int) (string, error) {
	if s.client == nil {
		return s.fallback.Summarize(ctx, raw, budgetTokens)
	}
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	resp, err := s.client.CompleteWithRequest(ctx, &llm.CompletionRequest{
		Messages: []*llm.Message{
			{Role: "user", Content: fmt.Sprintf(summaryPrompt, budgetTokens, raw)},
		},
		Temperature: s.Temperature,
		MaxTokens:   budgetTokens,
	})
	if err != nil {
		s.log.Warn("llm summarization failed, falling back to head/tail trim: %v", err)
		return s.fallback.Summarize(ctx, raw, budgetTokens)
	}

	// The model may overshoot its instructed budget; enforce it.
	return s.fallback.Summarize(ctx, resp.Content, budgetTokens)
}
