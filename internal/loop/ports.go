package loop

import (
	"context"

	"github.com/codefionn/agentloop/internal/checkpoint"
	"github.com/codefionn/agentloop/internal/contextstore"
	"github.com/codefionn/agentloop/internal/logger"
	"github.com/codefionn/agentloop/internal/taskgraph"
	"github.com/codefionn/agentloop/internal/validator"
)

// Planner produces a task graph from the goal and the current effective
// view. Replan additionally sees the prior graph and the validation
// outcome that triggered it; carrying succeeded nodes over is the
// controller's job, not the planner's.
type Planner interface {
	Plan(ctx context.Context, goal string, view []contextstore.Segment) (*taskgraph.Graph, error)
	Replan(ctx context.Context, goal string, view []contextstore.Segment, prior *taskgraph.Snapshot, last *validator.Result) (*taskgraph.Graph, error)
}

// Invoker executes one task node. Capabilities are opaque and stateless
// across calls; the controller applies per-node timeouts through ctx.
type Invoker interface {
	Invoke(ctx context.Context, node *taskgraph.Node) (interface{}, error)
}

// Validator checks the latest results against the goal. It sees the
// same effective view the planner reasons over, so external rule
// evaluation can weigh the session history, not just the graph.
type Validator interface {
	Validate(ctx context.Context, goal string, view []contextstore.Segment, snap *taskgraph.Snapshot) (*validator.Result, error)
}

// Reflector emits an advisory note appended to the context. It never
// mutates the graph.
type Reflector interface {
	Reflect(ctx context.Context, goal string, view []contextstore.Segment, snap *taskgraph.Snapshot) (string, error)
}

// Dependencies wires the controller's collaborators. Planner, Invoker and
// Validator are required; the rest default to no-ops.
type Dependencies struct {
	Planner   Planner
	Invoker   Invoker
	Validator Validator

	// Reflector is consulted only when reflection is enabled.
	Reflector Reflector

	// Context is the session's context store. Built from the session
	// configuration when nil.
	Context *contextstore.Store

	// Checkpoints receives loop state at phase boundaries. Defaults to
	// checkpoint.Noop.
	Checkpoints checkpoint.Sink

	Logger *logger.Logger
}
