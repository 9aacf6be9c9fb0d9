package scheduler

import (
	"sync"

	"github.com/joeycumines/go-scheduler/dispatch"
	"github.com/joeycumines/go-scheduler/runloop"
)

// Factory creates the default scheduler for the calling goroutine.
type Factory func() (Scheduler, error)

var defaultFactory struct {
	factory Factory
	mu      sync.RWMutex
}

// SetDefaultFactory replaces the factory used by Default. Passing nil
// restores the built-in behaviour.
func SetDefaultFactory(factory Factory) {
	defaultFactory.mu.Lock()
	defer defaultFactory.mu.Unlock()
	defaultFactory.factory = factory
}

// Default returns a scheduler for the calling goroutine. Unless replaced by
// SetDefaultFactory, that is a QueueScheduler if the caller is running a
// task of a serial queue, or otherwise a RunLoopScheduler for the caller's
// loop (the main loop, on the main goroutine).
//
// As with NewRunLoopScheduler, a goroutine that gets a RunLoopScheduler for
// its own, implicitly created loop must call runloop.Detach before it exits.
func Default(opts ...Option) (Scheduler, error) {
	defaultFactory.mu.RLock()
	factory := defaultFactory.factory
	defaultFactory.mu.RUnlock()

	if factory != nil {
		return factory()
	}

	if q := dispatch.Current(); q != nil && q.Class() == dispatch.ClassSerial {
		s, err := NewQueueScheduler(q, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := NewRunLoopScheduler(nil, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMainScheduler returns a RunLoopScheduler for the main loop.
func NewMainScheduler(opts ...Option) (*RunLoopScheduler, error) {
	return NewRunLoopScheduler(runloop.Main(), opts...)
}
