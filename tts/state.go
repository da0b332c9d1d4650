package tts

import "fmt"

// StateType represents the playback lifecycle state.
type StateType int

const (
	// StateIdle indicates no playback is active.
	StateIdle StateType = iota
	// StateStarting indicates a playback request is being prepared:
	// cache lookup, synthesis, decode, device start.
	StateStarting
	// StatePlaying indicates audio is playing, or the silent fallback
	// is advancing words after audio failed.
	StatePlaying
	// StateEnded indicates playback reached its natural end.
	StateEnded
	// StateStopped indicates playback was stopped by the caller.
	StateStopped
	// StateFailed indicates playback failed before any words advanced.
	StateFailed
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether the state counts as playback in progress.
func (s StateType) Active() bool {
	return s == StateStarting || s == StatePlaying
}

// Terminal reports whether the state ends a playback lifecycle. Terminal
// states settle back to StateIdle once their callbacks have fired.
func (s StateType) Terminal() bool {
	return s == StateEnded || s == StateStopped || s == StateFailed
}

// StateMachine validates playback state transitions. It is not
// goroutine-safe; the controller guards it with its own lock.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
}

// NewStateMachine creates a state machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:     {StateStarting},
			StateStarting: {StatePlaying, StateEnded, StateStopped, StateFailed},
			StatePlaying:  {StateEnded, StateStopped, StateFailed},
			StateEnded:    {StateIdle},
			StateStopped:  {StateIdle},
			StateFailed:   {StateIdle},
		},
	}
}

// Current returns the current state.
func (m *StateMachine) Current() StateType {
	return m.current
}

// CanTransition reports whether moving to the target state is legal.
func (m *StateMachine) CanTransition(to StateType) bool {
	for _, s := range m.transitions[m.current] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves to the target state, or returns an error naming the
// illegal edge. The state is unchanged on error.
func (m *StateMachine) Transition(to StateType) error {
	if !m.CanTransition(to) {
		return fmt.Errorf("invalid state transition %s -> %s", m.current, to)
	}
	m.current = to
	return nil
}
