// Package lifecycle runs the gatekeeper process through a small state
// machine and reports its health.
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed, and both terminal states may
// move back to Starting for a restart. Only Running is healthy.
//
// [Service] guards its state with a mutex; hooks run outside the lock.
// Start and Stop emit spans under the scope
// "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/lifecycle".
package lifecycle

// State is a lifecycle state. The zero value is not valid; a new
// [Service] starts in [StateUnknown].
type State string

const (
	// StateUnknown is the state of a Service that has never been started.
	StateUnknown State = "unknown"

	// StateStarting is held while the OnStart hook runs.
	StateStarting State = "starting"

	// StateRunning is the only healthy state.
	StateRunning State = "running"

	// StateStopping is held while the OnStop hook runs.
	StateStopping State = "stopping"

	// StateStopped follows a clean shutdown.
	StateStopped State = "stopped"

	// StateFailed follows a failed hook.
	StateFailed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting
//	Failed   → Starting
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether from may move to to. Same-state
// transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
