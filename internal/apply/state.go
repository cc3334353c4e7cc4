package apply

import "fmt"

// State is a step of the apply cycle.
type State string

const (
	StateIdle           State = "idle"
	StateStopped        State = "stopped"
	StateBackedUp       State = "backed-up"
	StateMutated        State = "mutated"
	StateValidated      State = "validated"
	StateRestarted      State = "restarted"
	StateFailed         State = "failed"
	StateDryRunComplete State = "dry-run-complete"
)

// transitions lists the allowed edges. Failed and the two success states are terminal.
var transitions = map[State][]State{
	StateIdle:      {StateStopped, StateDryRunComplete, StateFailed},
	StateStopped:   {StateBackedUp, StateFailed},
	StateBackedUp:  {StateMutated, StateFailed},
	StateMutated:   {StateValidated, StateFailed},
	StateValidated: {StateRestarted, StateFailed},
}

// CanTransition reports whether the edge from → to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// transitionName renders an edge for reports and errors.
func transitionName(from, to State) string {
	return fmt.Sprintf("%s -> %s", from, to)
}
