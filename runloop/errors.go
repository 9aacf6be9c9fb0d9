package runloop

import (
	"errors"
)

var (
	// ErrLoopTerminated is returned when a loop is used after its last
	// reference was released.
	ErrLoopTerminated = errors.New(`runloop: loop has been terminated`)

	// ErrNotOwner is returned when a loop is run from a goroutine other than
	// the one it is bound to.
	ErrNotOwner = errors.New(`runloop: loop is bound to another goroutine`)

	// ErrReentrantRun is returned when a loop is run from within one of its
	// own callouts.
	ErrReentrantRun = errors.New(`runloop: cannot run a loop from within the loop`)

	// ErrGoroutineHasLoop is returned when binding a loop to a goroutine that
	// is already bound to a different loop.
	ErrGoroutineHasLoop = errors.New(`runloop: goroutine already has a loop`)

	// ErrMainBound is returned by BindMain once the main loop exists.
	ErrMainBound = errors.New(`runloop: main loop already bound`)
)
