// Package loop implements the agent loop controller: the state machine
// that plans a task graph, executes it against the capability port,
// records observations into the context store, and validates the outcome
// until the session reaches DONE or FAILED.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codefionn/agentloop/internal/checkpoint"
	"github.com/codefionn/agentloop/internal/config"
	"github.com/codefionn/agentloop/internal/contextstore"
	"github.com/codefionn/agentloop/internal/logger"
	"github.com/codefionn/agentloop/internal/taskgraph"
	"github.com/codefionn/agentloop/internal/validator"
)

// Controller drives one session. A controller may run several sessions
// sequentially; TaskGraph and ContextStore are never shared across
// sessions.
type Controller struct {
	cfg  *config.Session
	deps Dependencies
	log  *logger.Logger

	sessionID string
	goal      string
	store     *contextstore.Store
	graph     *taskgraph.Graph
	prior     *taskgraph.Graph

	st state

	statsMu sync.Mutex
	stats   Stats
}

// New creates a controller from a validated configuration and wired
// dependencies.
func New(cfg *config.Session, deps Dependencies) (*Controller, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Planner == nil {
		return nil, fmt.Errorf("loop: a Planner is required")
	}
	if deps.Invoker == nil {
		return nil, fmt.Errorf("loop: an Invoker is required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("loop: a Validator is required")
	}

	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	if deps.Checkpoints == nil {
		deps.Checkpoints = checkpoint.Noop{}
	}

	store := deps.Context
	if store == nil {
		var err error
		store, err = contextstore.New(storeOptions(cfg, log))
		if err != nil {
			return nil, err
		}
	}

	sessionID := uuid.NewString()
	return &Controller{
		cfg:       cfg,
		deps:      deps,
		log:       log.WithPrefix("loop:" + sessionID[:8]),
		sessionID: sessionID,
		store:     store,
	}, nil
}

func storeOptions(cfg *config.Session, log *logger.Logger) contextstore.Options {
	return contextstore.Options{
		MaxTokens:           cfg.MaxTokens,
		ThresholdFraction:   cfg.CompressionThresholdFraction,
		SummaryBudgetTokens: cfg.SummaryBudget(),
		ArchiveAfterRounds:  cfg.ArchiveAfterRounds,
		Logger:              log,
	}
}

// SessionID returns the session identity used for checkpoints.
func (c *Controller) SessionID() string { return c.sessionID }

// ContextStore returns the session's context store.
func (c *Controller) ContextStore() *contextstore.Store { return c.store }

// Run executes one full session for the goal and always ends in exactly
// one of DONE or FAILED with a structured reason. Partial results from
// succeeded nodes are carried in the result regardless of the outcome.
func (c *Controller) Run(ctx context.Context, goal string) (*Result, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("loop: goal must not be empty")
	}

	c.goal = goal
	c.graph = nil
	c.prior = nil
	c.st = state{phase: PhasePlanning, termination: TerminationNone}

	return c.run(ctx)
}

// Continue re-enters the state machine of a resumed session.
func (c *Controller) Continue(ctx context.Context) (*Result, error) {
	if c.goal == "" {
		return nil, fmt.Errorf("loop: nothing to continue, no goal restored")
	}
	if c.graph == nil && c.st.phase != PhasePlanning && !c.st.phase.Terminal() {
		return nil, fmt.Errorf("loop: restored state has no graph for phase %s", c.st.phase)
	}
	return c.run(ctx)
}

func (c *Controller) run(ctx context.Context) (*Result, error) {
	if timeout := c.cfg.SessionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c.log.Info("session started: %s", c.goal)

	for !c.st.phase.Terminal() {
		switch c.st.phase {
		case PhasePlanning:
			c.doPlanning(ctx)
		case PhaseExecution:
			c.doExecution(ctx)
		case PhaseObservation:
			c.doObservation(ctx)
		case PhaseReflection:
			c.doReflection(ctx)
		case PhaseValidation:
			c.doValidation(ctx)
		case PhaseReplanning:
			c.doReplanning()
		}
		c.saveCheckpoint()
	}

	result := c.buildResult()
	c.recordStats(result)
	c.log.Info("session ended: %s (%s)", result.Termination, result.Reason)
	return result, nil
}

// doPlanning produces a task graph from the goal and the effective view.
// On a replanning pass the prior graph's succeeded nodes are adopted so
// finished work is never re-executed.
func (c *Controller) doPlanning(ctx context.Context) {
	c.st.iteration++
	if c.st.iteration > c.cfg.MaxIterations {
		c.fail(TerminationMaxIterationsExceeded,
			fmt.Sprintf("iteration cap of %d reached before completion", c.cfg.MaxIterations))
		return
	}

	view := c.store.EffectiveView()

	var (
		graph *taskgraph.Graph
		err   error
	)
	if c.st.replanPending && c.prior != nil {
		graph, err = c.deps.Planner.Replan(ctx, c.goal, view, c.prior.Snapshot(), c.st.lastValidation)
	} else {
		graph, err = c.deps.Planner.Plan(ctx, c.goal, view)
	}
	if err != nil {
		perr := &PlanningError{Err: err}
		c.fail(TerminationFailed, perr.Error())
		return
	}
	if graph == nil || graph.Len() == 0 {
		perr := &PlanningError{Err: errors.New("planner produced an empty graph")}
		c.fail(TerminationFailed, perr.Error())
		return
	}

	if c.st.replanPending {
		adopted := graph.AdoptResults(c.prior)
		c.log.Info("replanned: %d nodes, %d results adopted", graph.Len(), adopted)
	} else {
		c.log.Info("planned: %d nodes", graph.Len())
	}

	c.graph = graph
	c.prior = nil
	c.st.replanPending = false
	c.st.phase = PhaseExecution
}

// doExecution dispatches waves of ready nodes until nothing is ready or
// the session is aborted. A session timeout skips the remaining ready
// nodes so the loop still reaches validation.
func (c *Controller) doExecution(ctx context.Context) {
	for ctx.Err() == nil {
		ready := c.graph.ReadyNodes()
		if len(ready) == 0 {
			break
		}
		if err := c.executeWave(ctx, ready); err != nil {
			c.fail(TerminationFailed, fmt.Sprintf("execution aborted: %v", err))
			return
		}
	}
	if ctx.Err() != nil {
		c.log.Warn("session deadline hit, skipping remaining ready nodes")
	}
	c.st.phase = PhaseObservation
}

// executeWave runs one wave. Ready nodes never depend on each other, so
// parallel dispatch is safe; serial dispatch keeps ascending insertion
// order for reproducibility.
func (c *Controller) executeWave(ctx context.Context, ready []*taskgraph.Node) error {
	if !c.cfg.ParallelExecution || len(ready) == 1 {
		for _, n := range ready {
			if ctx.Err() != nil {
				return nil
			}
			if err := c.runNode(ctx, n.ID); err != nil {
				return err
			}
		}
		return nil
	}

	limit := c.cfg.MaxParallel
	if limit < 1 {
		limit = 1
	}

	grp := &errgroup.Group{}
	grp.SetLimit(limit)
	for _, n := range ready {
		id := n.ID
		grp.Go(func() error {
			return c.runNode(ctx, id)
		})
	}
	return grp.Wait()
}

// runNode executes a single node through the capability port. Failures
// and timeouts are absorbed into the node up to the retry limit; only
// graph integrity errors propagate.
func (c *Controller) runNode(ctx context.Context, id string) error {
	if err := c.graph.Mark(id, taskgraph.StatusReady, nil); err != nil {
		return err
	}
	if err := c.graph.Mark(id, taskgraph.StatusRunning, nil); err != nil {
		return err
	}

	node, ok := c.graph.Node(id)
	if !ok {
		return &taskgraph.UnknownNodeError{ID: id}
	}
	// The invoker gets a copy; the graph stays owned by the controller.
	invocation := *node
	invocation.Dependencies = append([]string(nil), node.Dependencies...)

	nodeCtx := ctx
	timeout := c.cfg.NodeTimeout()
	if timeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := c.deps.Invoker.Invoke(nodeCtx, &invocation)
	if err != nil {
		var nodeErr error
		if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			nodeErr = &TimeoutError{NodeID: id, Timeout: timeout}
		} else {
			nodeErr = &CapabilityError{NodeID: id, Err: err}
		}
		if markErr := c.graph.Mark(id, taskgraph.StatusFailed, nodeErr); markErr != nil {
			return markErr
		}
		if ctx.Err() != nil {
			// Session aborted: the node stays failed, no retry.
			c.log.Warn("node %s failed during session abort: %v", id, nodeErr)
			return nil
		}
		requeued, reqErr := c.graph.Requeue(id, c.cfg.RetryLimit)
		if reqErr != nil {
			return reqErr
		}
		if requeued {
			c.log.Warn("node %s failed (attempt %d), requeued: %v", id, invocation.RetryCount+1, nodeErr)
		} else {
			c.log.Error("node %s permanently failed after %d attempts: %v", id, c.cfg.RetryLimit, nodeErr)
		}
		return nil
	}

	c.log.Debug("node %s succeeded", id)
	return c.graph.Mark(id, taskgraph.StatusSucceeded, result)
}

// doObservation records the wave's results as a new round. Bookkeeping
// runs even when the session deadline already fired, so the round append
// is shielded from cancellation.
func (c *Controller) doObservation(ctx context.Context) {
	content := c.renderRound()
	if _, err := c.store.AppendRound(context.WithoutCancel(ctx), content); err != nil {
		c.fail(TerminationFailed, fmt.Sprintf("observation bookkeeping failed: %v", err))
		return
	}

	if c.cfg.EnableReflection && c.deps.Reflector != nil {
		c.st.phase = PhaseReflection
		return
	}
	c.st.phase = PhaseValidation
}

// renderRound produces the raw content for the observation round:
// iteration header plus one line per node in insertion order.
func (c *Controller) renderRound() string {
	var b strings.Builder
	fmt.Fprintf(&b, "iteration %d: %s\n", c.st.iteration, c.goal)

	snap := c.graph.Snapshot()
	for _, n := range snap.Nodes {
		switch n.Status {
		case taskgraph.StatusSucceeded:
			fmt.Fprintf(&b, "%s [%s]: %v\n", n.ID, n.Status, n.Result)
		case taskgraph.StatusFailed:
			fmt.Fprintf(&b, "%s [%s]: %s\n", n.ID, n.Status, n.FailureReason)
		default:
			fmt.Fprintf(&b, "%s [%s]\n", n.ID, n.Status)
		}
	}
	return b.String()
}

// doReflection appends an advisory note to the context. Reflection never
// mutates the graph; a reflector error is logged and skipped.
func (c *Controller) doReflection(ctx context.Context) {
	note, err := c.deps.Reflector.Reflect(ctx, c.goal, c.store.EffectiveView(), c.graph.Snapshot())
	if err != nil {
		c.log.Warn("reflection skipped: %v", err)
	} else if strings.TrimSpace(note) != "" {
		if _, err := c.store.AppendRound(context.WithoutCancel(ctx), "reflection note: "+note); err != nil {
			c.fail(TerminationFailed, fmt.Sprintf("reflection bookkeeping failed: %v", err))
			return
		}
	}
	c.st.phase = PhaseValidation
}

// doValidation gates termination: DONE requires a passing validation and
// a terminal graph without failed nodes; otherwise the loop replans when
// allowed or fails.
func (c *Controller) doValidation(ctx context.Context) {
	snap := c.graph.Snapshot()
	result, err := c.deps.Validator.Validate(ctx, c.goal, c.store.EffectiveView(), snap)
	if err != nil {
		c.fail(TerminationFailed, fmt.Sprintf("validation error: %v", err))
		return
	}
	c.st.lastValidation = result

	if result.Passed && c.graph.IsTerminal() && !c.graph.HasFailed() {
		c.st.phase = PhaseDone
		c.st.termination = TerminationCompleted
		c.st.reason = "validation passed, all nodes settled"
		return
	}

	reason := c.validationFailureReason(result)
	if c.cfg.EnableReplanning && c.st.iteration < c.cfg.MaxIterations && ctx.Err() == nil {
		c.log.Info("validation not satisfied (%s), replanning", reason)
		c.st.phase = PhaseReplanning
		return
	}

	if c.st.iteration >= c.cfg.MaxIterations {
		c.fail(TerminationMaxIterationsExceeded, reason)
		return
	}
	c.fail(TerminationFailed, reason)
}

func (c *Controller) validationFailureReason(result *validator.Result) string {
	if !result.Passed {
		for _, v := range result.Violations {
			if v.Severity == validator.SeverityError {
				return fmt.Sprintf("validation failed: %s", v.Message)
			}
		}
		return "validation failed"
	}
	if c.graph.HasFailed() {
		return "graph has permanently failed nodes"
	}
	return "graph did not reach a terminal state"
}

// doReplanning records the pass and hands control back to planning with
// the prior graph retained for result adoption.
func (c *Controller) doReplanning() {
	reason := "validation not satisfied"
	if c.st.lastValidation != nil {
		reason = c.validationFailureReason(c.st.lastValidation)
	}

	c.st.replanHistory = append(c.st.replanHistory, ReplanRecord{
		Iteration: c.st.iteration,
		Reason:    reason,
	})
	c.prior = c.graph
	c.st.replanPending = true
	c.st.phase = PhasePlanning
}

func (c *Controller) fail(termination Termination, reason string) {
	c.st.phase = PhaseFailed
	c.st.termination = termination
	c.st.reason = reason
}

func (c *Controller) buildResult() *Result {
	result := &Result{
		SessionID:      c.sessionID,
		Termination:    c.st.termination,
		Reason:         c.st.reason,
		Iterations:     c.st.iteration,
		LastValidation: c.st.lastValidation,
		ReplanHistory:  append([]ReplanRecord(nil), c.st.replanHistory...),
	}
	if c.graph != nil {
		result.NodeResults = c.graph.Results()
	}
	return result
}

func (c *Controller) recordStats(result *Result) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	c.stats.TotalRuns++
	c.stats.TotalIterations += result.Iterations
	if result.Completed() {
		c.stats.SuccessfulRuns++
	} else {
		c.stats.FailedRuns++
	}
}

// Stats returns aggregate outcomes across the controller's sessions.
func (c *Controller) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// saveCheckpoint persists loop state at a phase boundary. Checkpointing
// is best-effort; a sink error never fails the session.
func (c *Controller) saveCheckpoint() {
	cp := &checkpoint.Checkpoint{
		SessionID:   c.sessionID,
		Goal:        c.goal,
		Phase:       c.st.phase.String(),
		Iteration:   c.st.iteration,
		Context:     c.store.Snapshot(),
		ReplanCount: len(c.st.replanHistory),
	}
	if c.graph != nil {
		cp.Graph = c.graph.Snapshot()
	}
	if err := c.deps.Checkpoints.Save(cp); err != nil {
		c.log.Warn("checkpoint save failed: %v", err)
	}
}

// Resume rebuilds a controller from the latest checkpoint of a session.
// The context store is reconstructed deterministically from the persisted
// rounds before the state machine re-enters.
func Resume(cfg *config.Session, deps Dependencies, sessionID string) (*Controller, error) {
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("loop: resuming requires a checkpoint sink")
	}

	cp, err := deps.Checkpoints.Load(sessionID)
	if err != nil {
		return nil, err
	}

	phase, err := ParsePhase(cp.Phase)
	if err != nil {
		return nil, err
	}
	if phase.Terminal() {
		return nil, fmt.Errorf("loop: session %s already ended in %s, nothing to resume", cp.SessionID, phase)
	}

	c, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}

	if cp.Context != nil && deps.Context == nil {
		store, err := contextstore.Restore(cp.Context, storeOptions(c.cfg, c.log))
		if err != nil {
			return nil, err
		}
		c.store = store
	}

	c.sessionID = cp.SessionID
	c.log = logger.Discard()
	if deps.Logger != nil {
		c.log = deps.Logger.WithPrefix("loop:" + shortID(cp.SessionID))
	}
	c.goal = cp.Goal
	c.st = state{phase: phase, iteration: cp.Iteration, termination: TerminationNone}
	if cp.Graph != nil {
		c.graph = taskgraph.FromSnapshot(cp.Graph)
	}
	return c, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
