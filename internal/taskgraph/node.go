package taskgraph

// Status is the lifecycle state of a task node.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// allowedTransitions is the closed set of legal status changes. The
// failed -> pending retry path deliberately lives outside this table;
// it is only reachable through Graph.Requeue.
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusReady, StatusSkipped},
	StatusReady:   {StatusRunning, StatusSkipped},
	StatusRunning: {StatusSucceeded, StatusFailed},
}

func transitionAllowed(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Node is one unit of work inside a task graph.
type Node struct {
	// ID is unique within one graph.
	ID string `json:"id"`

	// Description is the natural-language intent of the step.
	Description string `json:"description"`

	// CapabilityRef names the capability that executes this node.
	CapabilityRef string `json:"capability_ref"`

	// Dependencies lists node IDs that must be succeeded or skipped
	// before this node becomes ready.
	Dependencies []string `json:"dependencies,omitempty"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Result holds the output payload once the node succeeded.
	Result any `json:"result,omitempty"`

	// FailureReason holds the diagnostic once the node failed.
	FailureReason string `json:"failure_reason,omitempty"`

	// RetryCount is the number of execution attempts made so far.
	RetryCount int `json:"retry_count"`

	// Args are passed to the capability invocation verbatim.
	Args map[string]any `json:"args,omitempty"`
}

// depSatisfied reports whether a dependency in the given status unblocks
// its dependents.
func depSatisfied(s Status) bool {
	return s == StatusSucceeded || s == StatusSkipped
}
