package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentloop/internal/taskgraph"
)

func buildGraph(t *testing.T, mark func(g *taskgraph.Graph)) *taskgraph.Snapshot {
	t.Helper()
	g := taskgraph.New("ship the release")
	require.NoError(t, g.AddNode(&taskgraph.Node{ID: "build", Description: "build artifacts", CapabilityRef: "shell"}))
	require.NoError(t, g.AddNode(&taskgraph.Node{ID: "test", Description: "run tests", CapabilityRef: "shell", Dependencies: []string{"build"}}))
	if mark != nil {
		mark(g)
	}
	return g.Snapshot()
}

func markSucceeded(t *testing.T, g *taskgraph.Graph, id string, result any) {
	t.Helper()
	require.NoError(t, g.Mark(id, taskgraph.StatusReady, nil))
	require.NoError(t, g.Mark(id, taskgraph.StatusRunning, nil))
	require.NoError(t, g.Mark(id, taskgraph.StatusSucceeded, result))
}

func markFailed(t *testing.T, g *taskgraph.Graph, id string, reason string) {
	t.Helper()
	require.NoError(t, g.Mark(id, taskgraph.StatusReady, nil))
	require.NoError(t, g.Mark(id, taskgraph.StatusRunning, nil))
	require.NoError(t, g.Mark(id, taskgraph.StatusFailed, reason))
}

func TestAllRulesPassOnCleanGraph(t *testing.T) {
	snap := buildGraph(t, func(g *taskgraph.Graph) {
		markSucceeded(t, g, "build", "artifacts.tar")
		markSucceeded(t, g, "test", "42 passed")
	})

	v := New(NoFailedNodes(), NonEmptyResults(), RequireNodes("build", "test"))
	result, err := v.Validate(context.Background(), "ship the release", nil, snap)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Empty(t, result.Violations)
	require.NotNil(t, result.Score)
	assert.Equal(t, 1.0, *result.Score)
}

func TestFailedNodeGatesResult(t *testing.T) {
	snap := buildGraph(t, func(g *taskgraph.Graph) {
		markSucceeded(t, g, "build", "artifacts.tar")
		markFailed(t, g, "test", "3 tests failed")
	})

	v := New(NoFailedNodes())
	result, err := v.Validate(context.Background(), "ship the release", nil, snap)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "no_failed_nodes", result.Violations[0].Rule)
	assert.Equal(t, "test", result.Violations[0].NodeID)
	assert.Contains(t, result.Violations[0].Message, "3 tests failed")
	require.NotNil(t, result.Score)
	assert.Equal(t, 0.5, *result.Score)
}

func TestSucceededWithoutResultIsViolation(t *testing.T) {
	snap := buildGraph(t, func(g *taskgraph.Graph) {
		markSucceeded(t, g, "build", nil)
	})

	v := New(NonEmptyResults())
	result, err := v.Validate(context.Background(), "ship the release", nil, snap)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "build", result.Violations[0].NodeID)
}

func TestRequireNodesMissingAndWrongStatus(t *testing.T) {
	snap := buildGraph(t, func(g *taskgraph.Graph) {
		markSucceeded(t, g, "build", "ok")
	})

	v := New(RequireNodes("build", "test", "deploy"))
	result, err := v.Validate(context.Background(), "ship the release", nil, snap)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	require.Len(t, result.Violations, 2)
	assert.Equal(t, "test", result.Violations[0].NodeID)
	assert.Equal(t, "deploy", result.Violations[1].NodeID)
}

func TestWarningsDoNotGate(t *testing.T) {
	snap := buildGraph(t, func(g *taskgraph.Graph) {
		require.NoError(t, g.Mark("build", taskgraph.StatusSkipped, nil))
		markSucceeded(t, g, "test", "ok")
	})

	v := New(WarnOnSkipped())
	result, err := v.Validate(context.Background(), "ship the release", nil, snap)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, SeverityWarning, result.Violations[0].Severity)
}

func TestViolationOrderFollowsRuleOrder(t *testing.T) {
	snap := buildGraph(t, func(g *taskgraph.Graph) {
		markFailed(t, g, "build", "compiler error")
	})

	v := New(RequireNodes("test"), NoFailedNodes())
	result, err := v.Validate(context.Background(), "ship the release", nil, snap)
	require.NoError(t, err)

	require.Len(t, result.Violations, 2)
	assert.Equal(t, "require_nodes", result.Violations[0].Rule)
	assert.Equal(t, "no_failed_nodes", result.Violations[1].Rule)
}

func TestEmptyRuleSetAndEmptyGraph(t *testing.T) {
	v := New()
	result, err := v.Validate(context.Background(), "anything", nil, &taskgraph.Snapshot{Goal: "anything"})
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Nil(t, result.Score)
}
