package validator

import (
	"context"
	"fmt"

	"github.com/codefionn/agentloop/internal/taskgraph"
)

// NoFailedNodes fails validation when any node ended up permanently
// failed.
func NoFailedNodes() Rule {
	return RuleFunc{
		RuleName: "no_failed_nodes",
		Fn: func(_ context.Context, _ string, snap *taskgraph.Snapshot) ([]Violation, error) {
			var violations []Violation
			for _, n := range snap.Nodes {
				if n.Status != taskgraph.StatusFailed {
					continue
				}
				violations = append(violations, Violation{
					Severity: SeverityError,
					NodeID:   n.ID,
					Message:  fmt.Sprintf("node %s failed: %s", n.ID, n.FailureReason),
				})
			}
			return violations, nil
		},
	}
}

// NonEmptyResults fails validation when a succeeded node produced no
// result payload.
func NonEmptyResults() Rule {
	return RuleFunc{
		RuleName: "non_empty_results",
		Fn: func(_ context.Context, _ string, snap *taskgraph.Snapshot) ([]Violation, error) {
			var violations []Violation
			for _, n := range snap.Nodes {
				if n.Status != taskgraph.StatusSucceeded {
					continue
				}
				if n.Result == nil {
					violations = append(violations, Violation{
						Severity: SeverityError,
						NodeID:   n.ID,
						Message:  fmt.Sprintf("node %s succeeded without a result", n.ID),
					})
				}
			}
			return violations, nil
		},
	}
}

// RequireNodes fails validation when any of the named nodes is absent or
// did not succeed. Skipped counts as missing output, not success.
func RequireNodes(ids ...string) Rule {
	return RuleFunc{
		RuleName: "require_nodes",
		Fn: func(_ context.Context, _ string, snap *taskgraph.Snapshot) ([]Violation, error) {
			byID := make(map[string]taskgraph.Node, len(snap.Nodes))
			for _, n := range snap.Nodes {
				byID[n.ID] = n
			}

			var violations []Violation
			for _, id := range ids {
				n, ok := byID[id]
				if !ok {
					violations = append(violations, Violation{
						Severity: SeverityError,
						NodeID:   id,
						Message:  fmt.Sprintf("required node %s is not in the graph", id),
					})
					continue
				}
				if n.Status != taskgraph.StatusSucceeded {
					violations = append(violations, Violation{
						Severity: SeverityError,
						NodeID:   id,
						Message:  fmt.Sprintf("required node %s is %s, expected succeeded", id, n.Status),
					})
				}
			}
			return violations, nil
		},
	}
}

// WarnOnSkipped reports skipped nodes as warnings. It never gates the
// outcome.
func WarnOnSkipped() Rule {
	return RuleFunc{
		RuleName: "warn_on_skipped",
		Fn: func(_ context.Context, _ string, snap *taskgraph.Snapshot) ([]Violation, error) {
			var violations []Violation
			for _, n := range snap.Nodes {
				if n.Status == taskgraph.StatusSkipped {
					violations = append(violations, Violation{
						Severity: SeverityWarning,
						NodeID:   n.ID,
						Message:  fmt.Sprintf("node %s was skipped", n.ID),
					})
				}
			}
			return violations, nil
		},
	}
}
