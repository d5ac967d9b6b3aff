package task

import (
	"errors"
	"strings"
)

// IsNotFound reports whether err is or wraps ErrTaskNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsInvalidStateTransition reports whether err is or wraps
// ErrInvalidStateTransition.
func IsInvalidStateTransition(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}

// State represents the lifecycle state of a task. Values are wire-visible
// and must not be renumbered.
type State int

const (
	StateDiscarded  State = -101
	StateCancelled  State = -100
	StatePending    State = 0
	StateProcessing State = 1
	StateCompleted  State = 100
	StateRetryable  State = 101
)

func (s State) String() string {
	switch s {
	case StateDiscarded:
		return "discarded"
	case StateCancelled:
		return "cancelled"
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// ParseState parses a state name (case-insensitive). Numeric values are
// not accepted here; see IsValid.
func ParseState(s string) (State, bool) {
	switch strings.ToLower(s) {
	case "discarded":
		return StateDiscarded, true
	case "cancelled":
		return StateCancelled, true
	case "pending":
		return StatePending, true
	case "processing":
		return StateProcessing, true
	case "completed":
		return StateCompleted, true
	case "retryable":
		return StateRetryable, true
	default:
		return 0, false
	}
}

// IsValid reports whether n is one of the closed set of state values.
func IsValid(n int) (State, bool) {
	switch State(n) {
	case StateDiscarded, StateCancelled, StatePending, StateProcessing, StateCompleted, StateRetryable:
		return State(n), true
	default:
		return 0, false
	}
}

// IsTerminal reports whether the state is a finalized state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateDiscarded
}

// Error taxonomy shared across the queue and store layers.
var (
	// ErrTaskNotFound is returned when a referenced task id does not exist.
	ErrTaskNotFound = errors.New("task: not found")
	// ErrInvalidStateTransition is returned when a mutating operation's
	// guard predicate does not match the row's current state.
	ErrInvalidStateTransition = errors.New("task: invalid state transition")
	// ErrInvalidTaskData is returned when persisted JSON cannot be decoded
	// back into a Task.
	ErrInvalidTaskData = errors.New("task: invalid task data")
)

// legalTransitions enumerates every (from, to) pair the queue is allowed to
// perform, including the bulk Dequeue/Retry transitions; Enqueue (which
// always produces PENDING from nothing) has no entry. Package queue does
// not consult it: its operations rely on the store's guarded SQL, which
// checks the expected current state.
var legalTransitions = map[State]map[State]bool{
	StatePending:    {StateProcessing: true, StateCancelled: true},
	StateProcessing: {StateCompleted: true, StateRetryable: true, StateDiscarded: true, StatePending: true},
	StateRetryable:  {StatePending: true, StateDiscarded: true},
	StateDiscarded:  {StatePending: true},
}

// CanTransition reports whether moving from s to target is a legal
// single-task transition.
func (s State) CanTransition(target State) bool {
	targets, ok := legalTransitions[s]
	if !ok {
		return false
	}
	return targets[target]
}
