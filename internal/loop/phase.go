package loop

import "fmt"

// Phase is one state of the controller's state machine.
type Phase int

const (
	PhasePlanning Phase = iota
	PhaseExecution
	PhaseObservation
	PhaseReflection
	PhaseValidation
	PhaseReplanning
	PhaseDone
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhasePlanning:    "planning",
	PhaseExecution:   "execution",
	PhaseObservation: "observation",
	PhaseReflection:  "reflection",
	PhaseValidation:  "validation",
	PhaseReplanning:  "replanning",
	PhaseDone:        "done",
	PhaseFailed:      "failed",
}

// String returns the lowercase phase name.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the machine stops in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// ParsePhase converts a phase name back to a Phase, used when resuming
// from a checkpoint.
func ParsePhase(name string) (Phase, error) {
	for p, n := range phaseNames {
		if n == name {
			return p, nil
		}
	}
	return PhaseFailed, fmt.Errorf("loop: unknown phase %q", name)
}
