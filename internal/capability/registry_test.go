package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentloop/internal/taskgraph"
)

func TestRegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("echo", func(_ context.Context, node *taskgraph.Node) (interface{}, error) {
		return node.Args["text"], nil
	}))

	node := &taskgraph.Node{ID: "n1", CapabilityRef: "echo", Args: map[string]interface{}{"text": "hello"}}
	result, err := r.Invoke(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestUnknownCapability(t *testing.T) {
	r := NewRegistry()

	_, err := r.Invoke(context.Background(), &taskgraph.Node{ID: "n1", CapabilityRef: "missing"})
	require.Error(t, err)

	var unknown *UnknownCapabilityError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Ref)
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()
	handler := func(context.Context, *taskgraph.Node) (interface{}, error) { return nil, nil }

	require.NoError(t, r.Register("shell", handler))
	assert.Error(t, r.Register("shell", handler))
	assert.Error(t, r.Register("", handler))
	assert.Error(t, r.Register("nil-handler", nil))
}

func TestRefsSorted(t *testing.T) {
	r := NewRegistry()
	handler := func(context.Context, *taskgraph.Node) (interface{}, error) { return nil, nil }

	for _, ref := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(ref, handler))
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Refs())
	assert.True(t, r.Has("mid"))
	assert.False(t, r.Has("omega"))
}

func TestValidateSnapshot(t *testing.T) {
	r := NewRegistry()
	handler := func(context.Context, *taskgraph.Node) (interface{}, error) { return nil, nil }
	require.NoError(t, r.Register("shell", handler))

	g := taskgraph.New("goal")
	require.NoError(t, g.AddNode(&taskgraph.Node{ID: "a", CapabilityRef: "shell"}))
	require.NoError(t, g.AddNode(&taskgraph.Node{ID: "b", CapabilityRef: "browser"}))

	err := r.Validate(g.Snapshot())
	var unknown *UnknownCapabilityError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "browser", unknown.Ref)
}
