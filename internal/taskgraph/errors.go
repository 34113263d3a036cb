package taskgraph

import "fmt"

// DuplicateIDError reports an attempt to add a node whose ID already exists.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("task graph: duplicate node id %q", e.ID)
}

// UnknownNodeError reports an operation against a node ID that is not in
// the graph.
type UnknownNodeError struct {
	ID string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("task graph: unknown node id %q", e.ID)
}

// CycleError reports a dependency edge that would make the graph cyclic.
type CycleError struct {
	From string
	To   string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("task graph: dependency %q -> %q would create a cycle", e.From, e.To)
}

// InvalidTransitionError reports a status change outside the allowed
// transition table.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task graph: node %q cannot transition %s -> %s", e.ID, e.From, e.To)
}
