package taskgraph

import (
	"fmt"
	"sync"
)

// Graph owns the task nodes of one planning pass plus the root goal text.
// A replanning pass produces a fresh Graph and carries succeeded work over
// with AdoptResults; a Graph is never rewritten in place across passes.
//
// All methods are safe for concurrent use; execution waves mark nodes from
// worker goroutines.
type Graph struct {
	mu    sync.RWMutex
	goal  string
	nodes map[string]*Node
	order []string // insertion order, the deterministic tie-break
}

// New creates an empty graph for the given goal.
func New(goal string) *Graph {
	return &Graph{
		goal:  goal,
		nodes: make(map[string]*Node),
	}
}

// Goal returns the root goal text.
func (g *Graph) Goal() string {
	return g.goal
}

// AddNode inserts a node. Dependencies may reference nodes that are added
// later; such nodes simply stay pending until every dependency exists and
// is satisfied. The graph is left untouched when an error is returned.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("task graph: node requires an id")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.ID]; exists {
		return &DuplicateIDError{ID: n.ID}
	}

	for _, dep := range n.Dependencies {
		if dep == n.ID {
			return &CycleError{From: n.ID, To: dep}
		}
		// Reachability check before insertion: if the dependency can
		// already reach this node's ID through existing edges, the new
		// edges would close a cycle.
		if g.reaches(dep, n.ID, map[string]bool{}) {
			return &CycleError{From: n.ID, To: dep}
		}
	}

	if n.Status == "" {
		n.Status = StatusPending
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// AddDependency adds an edge from -> to (from depends on to). Both nodes
// must exist. Fails with CycleError without mutating the graph when the
// edge would make the dependency relation cyclic.
func (g *Graph) AddDependency(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.nodes[from]
	if !ok {
		return &UnknownNodeError{ID: from}
	}
	if _, ok := g.nodes[to]; !ok {
		return &UnknownNodeError{ID: to}
	}
	if from == to || g.reaches(to, from, map[string]bool{}) {
		return &CycleError{From: from, To: to}
	}

	for _, dep := range src.Dependencies {
		if dep == to {
			return nil
		}
	}
	src.Dependencies = append(src.Dependencies, to)
	return nil
}

// reaches reports whether target is reachable from start by following
// dependency edges. Callers hold the lock. Missing nodes contribute no
// edges.
func (g *Graph) reaches(start, target string, visited map[string]bool) bool {
	if start == target {
		return true
	}
	if visited[start] {
		return false
	}
	visited[start] = true

	node, ok := g.nodes[start]
	if !ok {
		return false
	}
	for _, dep := range node.Dependencies {
		if g.reaches(dep, target, visited) {
			return true
		}
	}
	return false
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// ReadyNodes returns the nodes whose dependencies are all succeeded or
// skipped and whose own status is pending, in insertion order.
func (g *Graph) ReadyNodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.readyLocked()
}

func (g *Graph) readyLocked() []*Node {
	ready := make([]*Node, 0)
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Status != StatusPending {
			continue
		}
		ok := true
		for _, dep := range n.Dependencies {
			depNode, exists := g.nodes[dep]
			if !exists || !depSatisfied(depNode.Status) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, n)
		}
	}
	return ready
}

// Mark applies a status transition. For StatusSucceeded the payload is
// stored as the node result; for StatusFailed it becomes the failure
// diagnostic (error or string). Marking a node running counts an attempt.
func (g *Graph) Mark(id string, to Status, payload any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return &UnknownNodeError{ID: id}
	}
	if !transitionAllowed(n.Status, to) {
		return &InvalidTransitionError{ID: id, From: n.Status, To: to}
	}

	switch to {
	case StatusSucceeded:
		n.Result = payload
		n.FailureReason = ""
	case StatusFailed:
		switch v := payload.(type) {
		case error:
			n.FailureReason = v.Error()
		case string:
			n.FailureReason = v
		case nil:
			n.FailureReason = "unknown failure"
		default:
			n.FailureReason = fmt.Sprintf("%v", v)
		}
	case StatusRunning:
		n.RetryCount++
	}

	n.Status = to
	return nil
}

// Requeue resets a failed node to pending for a later wave. It refuses to
// requeue once the attempt count has reached retryLimit; the node then
// stays failed permanently.
func (g *Graph) Requeue(id string, retryLimit int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return false, &UnknownNodeError{ID: id}
	}
	if n.Status != StatusFailed {
		return false, &InvalidTransitionError{ID: id, From: n.Status, To: StatusPending}
	}
	if n.RetryCount >= retryLimit {
		return false, nil
	}

	n.Status = StatusPending
	return true, nil
}

// IsTerminal reports whether no node can make further progress: nothing is
// ready or running, and every remaining pending node is blocked behind a
// failed dependency.
func (g *Graph) IsTerminal() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		switch g.nodes[id].Status {
		case StatusReady, StatusRunning:
			return false
		}
	}
	return len(g.readyLocked()) == 0
}

// HasFailed reports whether at least one node is in the failed state.
func (g *Graph) HasFailed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		if g.nodes[id].Status == StatusFailed {
			return true
		}
	}
	return false
}

// Results returns the outputs of all succeeded nodes keyed by node ID.
// Partial results stay retrievable regardless of how the session ends.
func (g *Graph) Results() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]any)
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Status == StatusSucceeded {
			out[id] = n.Result
		}
	}
	return out
}

// AdoptResults carries succeeded work from a prior planning pass into this
// graph: any node whose ID succeeded in prior is marked succeeded here with
// the prior result, so replanning never re-executes finished steps.
func (g *Graph) AdoptResults(prior *Graph) int {
	if prior == nil {
		return 0
	}

	priorResults := prior.Results()

	g.mu.Lock()
	defer g.mu.Unlock()

	adopted := 0
	for _, id := range g.order {
		result, ok := priorResults[id]
		if !ok {
			continue
		}
		n := g.nodes[id]
		if n.Status != StatusPending {
			continue
		}
		n.Status = StatusSucceeded
		n.Result = result
		adopted++
	}
	return adopted
}
