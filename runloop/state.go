package runloop

import (
	"sync/atomic"
)

// LoopState represents the current state of a loop.
//
//	StateAwake → StateRunning          [Run, RunInMode]
//	StateRunning → StateSleeping       [sleep via CAS]
//	StateSleeping → StateRunning       [wake via CAS]
//	StateRunning → StateAwake          [run returns]
//	StateAwake → StateTerminated       [last Release]
//	StateTerminated → (terminal)
//
// Use tryTransition (CAS) for the temporary states, and store only for
// StateTerminated.
type LoopState uint32

const (
	// StateAwake indicates the loop exists but is not being run.
	StateAwake LoopState = iota
	// StateRunning indicates the loop is processing sources.
	StateRunning
	// StateSleeping indicates the loop is blocked waiting for a wake-up.
	StateSleeping
	// StateTerminated indicates the loop's last reference was released.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

type fastState struct {
	v atomic.Uint32
}

func (s *fastState) load() LoopState {
	return LoopState(s.v.Load())
}

func (s *fastState) store(state LoopState) {
	s.v.Store(uint32(state))
}

func (s *fastState) tryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
