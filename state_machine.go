package session

import (
	goerrors "github.com/goliatone/go-errors"
)

// State names the session lifecycle positions. Deriving booleans from a
// single named state removes impossible combinations such as an
// authenticated session without a user record.
type State string

const (
	// StateInitializing is entered once at process start and exited exactly once.
	StateInitializing State = "initializing"
	// StateAnonymous means no usable session exists.
	StateAnonymous State = "anonymous"
	// StateAuthenticated means a token pair is stored and the cached user is verified.
	StateAuthenticated State = "authenticated"
	// StateUnverified means a token pair is stored but the email-verification
	// gate is still closed. Distinct from both authenticated and anonymous.
	StateUnverified State = "unverified"
	// StateError means startup could not establish a trustworthy baseline
	// (storage failure); network failures never land here.
	StateError State = "error"
)

// ErrInvalidTransition is returned when a requested state change is not in
// the transition table.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryConflict).
	WithTextCode("INVALID_SESSION_TRANSITION").
	WithCode(goerrors.CodeConflict)

var sessionTransitions = map[State]map[State]struct{}{
	StateInitializing: {
		StateAnonymous:     {},
		StateAuthenticated: {},
		StateUnverified:    {},
		StateError:         {},
	},
	StateAnonymous: {
		StateAuthenticated: {},
		StateUnverified:    {},
	},
	StateAuthenticated: {
		StateAnonymous:  {},
		StateUnverified: {},
	},
	StateUnverified: {
		StateAnonymous:     {},
		StateAuthenticated: {},
	},
	StateError: {
		StateAnonymous:     {},
		StateAuthenticated: {},
		StateUnverified:    {},
	},
}

// CanTransitionTo reports whether the table allows moving from s to target.
// Staying put is always allowed.
func (s State) CanTransitionTo(target State) bool {
	if s == target {
		return true
	}
	allowed, ok := sessionTransitions[s]
	if !ok {
		return false
	}
	_, exists := allowed[target]
	return exists
}

// stateMachine is the minimal FSM the Manager drives. Callers hold the
// Manager lock; the machine itself is not synchronized.
type stateMachine struct {
	state State
}

func newStateMachine() stateMachine {
	return stateMachine{state: StateInitializing}
}

func (m *stateMachine) current() State {
	return m.state
}

func (m *stateMachine) transition(target State) error {
	if target == "" {
		return cloneWithMetadata(ErrInvalidTransition, map[string]any{
			"reason": "target state is empty",
		})
	}
	if m.state == target {
		return nil
	}
	if !m.state.CanTransitionTo(target) {
		return cloneWithMetadata(ErrInvalidTransition, map[string]any{
			"from": string(m.state),
			"to":   string(target),
		})
	}
	m.state = target
	return nil
}

// force bypasses the table for externally-triggered cancellation, e.g. a
// token-expired broadcast that must demote the session from any state.
func (m *stateMachine) force(target State) {
	m.state = target
}
