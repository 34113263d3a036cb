// Package validator checks completed task-graph results against the
// session goal. Validation gates loop termination: a failing result sends
// the controller into replanning instead of finishing.
package validator

import (
	"context"
	"fmt"

	"github.com/codefionn/agentloop/internal/contextstore"
	"github.com/codefionn/agentloop/internal/taskgraph"
)

// Severity classifies a violation. Only SeverityError violations gate the
// overall outcome; warnings are advisory.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one rule finding.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// NodeID names the offending node when the finding is node-scoped.
	NodeID string `json:"node_id,omitempty"`
}

// Result is the outcome of one validation pass. Violations keep the order
// in which rules reported them.
type Result struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`

	// Score is an optional quality measure in [0, 1], set when at least
	// one rule produces one.
	Score *float64 `json:"score,omitempty"`
}

// Rule inspects the goal and the finished graph and reports violations.
type Rule interface {
	Name() string
	Check(ctx context.Context, goal string, snap *taskgraph.Snapshot) ([]Violation, error)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc struct {
	RuleName string
	Fn       func(ctx context.Context, goal string, snap *taskgraph.Snapshot) ([]Violation, error)
}

func (r RuleFunc) Name() string { return r.RuleName }

func (r RuleFunc) Check(ctx context.Context, goal string, snap *taskgraph.Snapshot) ([]Violation, error) {
	return r.Fn(ctx, goal, snap)
}

// Validator runs a fixed rule set in order.
type Validator struct {
	rules []Rule
}

// New creates a Validator. With no rules every graph passes.
func New(rules ...Rule) *Validator {
	return &Validator{rules: rules}
}

// Validate runs all rules against the latest results. The effective view
// accompanies the graph snapshot for rule sets that weigh the session
// history; the built-in rules inspect only the graph. The result fails
// exactly when at least one error-severity violation is reported.
func (v *Validator) Validate(ctx context.Context, goal string, view []contextstore.Segment, snap *taskgraph.Snapshot) (*Result, error) {
	result := &Result{Passed: true}

	for _, rule := range v.rules {
		violations, err := rule.Check(ctx, goal, snap)
		if err != nil {
			return nil, fmt.Errorf("validator: rule %s: %w", rule.Name(), err)
		}
		for _, violation := range violations {
			if violation.Rule == "" {
				violation.Rule = rule.Name()
			}
			if violation.Severity == SeverityError {
				result.Passed = false
			}
			result.Violations = append(result.Violations, violation)
		}
	}

	result.Score = score(snap)
	return result, nil
}

// score is the fraction of nodes that succeeded, nil for an empty graph.
func score(snap *taskgraph.Snapshot) *float64 {
	if snap == nil || len(snap.Nodes) == 0 {
		return nil
	}
	succeeded := 0
	for _, n := range snap.Nodes {
		if n.Status == taskgraph.StatusSucceeded {
			succeeded++
		}
	}
	s := float64(succeeded) / float64(len(snap.Nodes))
	return &s
}
