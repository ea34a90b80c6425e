package httpcore

import (
	"sync/atomic"
)

// serverState is the run-state of the event loop.
//
// State Machine:
//
//	stateCreated (0) → stateRunning (1)  [Run()]
//	stateRunning (1) → stateClosed (2)   [Close()]
//	stateCreated (0) → stateClosed (2)   [Close() before Run()]
//	stateClosed  (2) → (terminal)
//
// Transitions use CAS so a racing Run/Close pair resolves to exactly one
// winner; stateClosed is irreversible.
type serverState uint32

const (
	// stateCreated indicates the server has been constructed but not started.
	stateCreated serverState = iota
	// stateRunning indicates the I/O loop is executing.
	stateRunning
	// stateClosed indicates the server has been shut down.
	stateClosed
)

// String returns a human-readable representation of the state.
func (s serverState) String() string {
	switch s {
	case stateCreated:
		return "Created"
	case stateRunning:
		return "Running"
	case stateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// runState is a lock-free state machine for the server lifecycle.
type runState struct {
	v atomic.Uint32
}

// load returns the current state atomically.
func (s *runState) load() serverState {
	return serverState(s.v.Load())
}

// tryTransition attempts to atomically transition from one state to another.
func (s *runState) tryTransition(from, to serverState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
