package loop

import (
	"fmt"
	"time"
)

// PlanningError is non-recoverable: without a graph there is nothing to
// execute, so the session fails.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("loop: planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// CapabilityError is a node-level failure, recoverable up to the retry
// limit.
type CapabilityError struct {
	NodeID string
	Err    error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("loop: node %s: capability failed: %v", e.NodeID, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// TimeoutError is a node-level timeout. Retry accounting treats it the
// same as CapabilityError.
type TimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("loop: node %s: timed out after %s", e.NodeID, e.Timeout)
}
