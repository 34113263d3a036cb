package loop

import (
	"github.com/codefionn/agentloop/internal/validator"
)

// Termination classifies how a session ended.
type Termination string

const (
	TerminationNone                  Termination = "none"
	TerminationCompleted             Termination = "completed"
	TerminationFailed                Termination = "failed"
	TerminationMaxIterationsExceeded Termination = "max_iterations_exceeded"
)

// ReplanRecord is one entry of the session's replanning history.
type ReplanRecord struct {
	Iteration int    `json:"iteration"`
	Reason    string `json:"reason"`
}

// state is the controller's own mutable state, the unit a durable
// workflow substrate checkpoints.
type state struct {
	phase          Phase
	iteration      int
	replanPending  bool
	replanHistory  []ReplanRecord
	lastValidation *validator.Result
	termination    Termination
	reason         string
}

// Result is the structured outcome of one session. NodeResults carries
// the outputs of every succeeded node regardless of how the session
// ended.
type Result struct {
	SessionID      string                 `json:"session_id"`
	Termination    Termination            `json:"termination"`
	Reason         string                 `json:"reason,omitempty"`
	Iterations     int                    `json:"iterations"`
	NodeResults    map[string]interface{} `json:"node_results,omitempty"`
	LastValidation *validator.Result      `json:"last_validation,omitempty"`
	ReplanHistory  []ReplanRecord         `json:"replan_history,omitempty"`
}

// Completed reports whether the session reached DONE.
func (r *Result) Completed() bool {
	return r.Termination == TerminationCompleted
}

// Stats aggregates outcomes across sessions run on one controller.
type Stats struct {
	TotalRuns       int `json:"total_runs"`
	SuccessfulRuns  int `json:"successful_runs"`
	FailedRuns      int `json:"failed_runs"`
	TotalIterations int `json:"total_iterations"`
}
