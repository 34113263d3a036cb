package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentloop/internal/llm"
)

// runeEstimator counts one token per rune for exact assertions.
func runeEstimator(text string) int {
	return utf8.RuneCountInString(text)
}

func TestHeadTailContentWithinBudgetUnchanged(t *testing.T) {
	s := NewHeadTail(runeEstimator)
	out, err := s.Summarize(context.Background(), "short", 10)
	require.NoError(t, err)
	assert.Equal(t, "short", out)
}

func TestHeadTailRespectsBudget(t *testing.T) {
	s := NewHeadTail(runeEstimator)
	raw := strings.Repeat("abcdefghij", 100)

	for _, budget := range []int{5, 20, 100, 500} {
		out, err := s.Summarize(context.Background(), raw, budget)
		require.NoError(t, err)
		assert.LessOrEqual(t, runeEstimator(out), budget, "budget %d", budget)
	}
}

func TestHeadTailKeepsHeadAndTail(t *testing.T) {
	s := NewHeadTail(runeEstimator)
	raw := "BEGIN " + strings.Repeat("x", 500) + " END"

	out, err := s.Summarize(context.Background(), raw, 60)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "BEGIN"), "head preserved: %q", out)
	assert.True(t, strings.HasSuffix(out, "END"), "tail preserved: %q", out)
	assert.Contains(t, out, "[...]")
}

func TestHeadTailDeterministic(t *testing.T) {
	s := NewHeadTail(runeEstimator)
	raw := strings.Repeat("round content ", 200)

	first, err := s.Summarize(context.Background(), raw, 50)
	require.NoError(t, err)
	second, err := s.Summarize(context.Background(), raw, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Summarizing a summary is a no-op: it already fits the budget.
	again, err := s.Summarize(context.Background(), first, 50)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestHeadTailTinyBudget(t *testing.T) {
	s := NewHeadTail(runeEstimator)
	out, err := s.Summarize(context.Background(), strings.Repeat("z", 100), 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, runeEstimator(out), 1)
}

type stubClient struct {
	response string
	err      error
	prompts  []string
}

func (c *stubClient) CompleteWithRequest(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	for _, m := range req.Messages {
		c.prompts = append(c.prompts, m.Content)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Content: c.response, StopReason: "end_turn"}, nil
}

func (c *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.CompleteWithRequest(ctx, &llm.CompletionRequest{
		Messages: []*llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *stubClient) GetModelName() string { return "stub" }

func TestLLMSummarizerUsesModelOutput(t *testing.T) {
	client := &stubClient{response: "model summary"}
	s := NewLLM(client, runeEstimator, nil)

	out, err := s.Summarize(context.Background(), strings.Repeat("long ", 100), 50)
	require.NoError(t, err)
	assert.Equal(t, "model summary", out)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "long")
}

func TestLLMSummarizerEnforcesBudgetOnModelOvershoot(t *testing.T) {
	client := &stubClient{response: strings.Repeat("verbose ", 100)}
	s := NewLLM(client, runeEstimator, nil)

	out, err := s.Summarize(context.Background(), "raw content to merge", 30)
	require.NoError(t, err)
	assert.LessOrEqual(t, runeEstimator(out), 30)
}

func TestLLMSummarizerFallsBackOnError(t *testing.T) {
	client := &stubClient{err: errors.New("provider down")}
	s := NewLLM(client, runeEstimator, nil)

	raw := strings.Repeat("abc ", 100)
	out, err := s.Summarize(context.Background(), raw, 40)
	require.NoError(t, err)
	assert.LessOrEqual(t, runeEstimator(out), 40)
	assert.NotEmpty(t, out)
}

func TestLLMSummarizerNilClientFallsBack(t *testing.T) {
	s := NewLLM(nil, runeEstimator, nil)
	out, err := s.Summarize(context.Background(), strings.Repeat("q", 100), 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, runeEstimator(out), 10)
}
