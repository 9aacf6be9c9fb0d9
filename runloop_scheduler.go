package scheduler

import (
	"sync"

	"github.com/joeycumines/go-scheduler/internal/logging"
	"github.com/joeycumines/go-scheduler/runloop"
)

// isMainThread is replaced in tests.
var isMainThread = runloop.IsMainThread

// RunLoopScheduler is a Scheduler bound to a runloop.Loop. Tasks run on the
// loop's goroutine, from a source the scheduler adds to the loop's
// DefaultMode.
type RunLoopScheduler struct {
	logger  logging.Logger
	loop    *runloop.Loop
	source  *runloop.Source
	holder  *queueHolder
	backlog *backlog
	mu      sync.RWMutex
	closed  bool
}

var _ Scheduler = (*RunLoopScheduler)(nil)

// NewRunLoopScheduler creates a scheduler for loop, or for the calling
// goroutine's loop (see runloop.Current) if loop is nil. The scheduler holds
// a reference to the loop until it is closed. It fails with
// runloop.ErrLoopTerminated if the loop was already released.
//
// A loop created implicitly for a goroutine other than the main goroutine is
// owned by that goroutine, which must call runloop.Detach before it exits.
// Until then, closing the scheduler does not free the loop, nor the tasks
// still queued on it.
func NewRunLoopScheduler(loop *runloop.Loop, opts ...Option) (*RunLoopScheduler, error) {
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		return nil, err
	}

	b, err := newBacklog(cfg, `runloop`)
	if err != nil {
		return nil, err
	}

	if loop == nil {
		loop = runloop.Current()
	}
	if err := loop.Retain(); err != nil {
		return nil, err
	}

	holder := newQueueHolder(cfg.logger)

	s := &RunLoopScheduler{
		logger:  cfg.logger,
		loop:    loop,
		holder:  holder,
		backlog: b,
		source:  runloop.NewSource(0, holder.sourceContext()),
	}

	loop.AddSource(s.source, runloop.DefaultMode)

	return s, nil
}

// Loop returns the loop the scheduler is bound to.
func (s *RunLoopScheduler) Loop() *runloop.Loop {
	return s.loop
}

// Invoke buffers task, then signals the scheduler's source and wakes the
// loop. Invoking on a closed scheduler drops the task, and logs a warning.
func (s *RunLoopScheduler) Invoke(task Task) {
	if task == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		logClosed(s.logger, `runloop`)
		return
	}

	pending, ok := s.holder.queue.push(task)
	if !ok {
		logClosed(s.logger, `runloop`)
		return
	}

	// signalling alone won't wake a sleeping loop
	s.source.Signal()
	s.loop.WakeUp()

	s.backlog.check(pending)
}

// IsOnThread reports whether the caller's goroutine is bound to the
// scheduler's loop.
func (s *RunLoopScheduler) IsOnThread() bool {
	return runloop.Peek() == s.loop
}

// IsSameAs reports whether other is a RunLoopScheduler for the same loop.
func (s *RunLoopScheduler) IsSameAs(other Scheduler) bool {
	o, ok := other.(*RunLoopScheduler)
	return ok && o != nil && o.loop == s.loop
}

// CanInvoke is true on the main goroutine, whose loop is assumed to be run
// eventually. Otherwise, it is true only while the calling goroutine's loop
// is running, since a loop that isn't may never be.
func (s *RunLoopScheduler) CanInvoke() bool {
	if isMainThread() {
		return true
	}
	l := runloop.Peek()
	if l == nil {
		return false
	}
	_, ok := l.CurrentMode()
	return ok
}

// Close invalidates the scheduler's source, and releases the loop. Buffered
// tasks are discarded once the loop lets go of the source, which may be
// after Close returns.
func (s *RunLoopScheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.source.Invalidate()
	s.source.Release()
	s.loop.Release()

	return nil
}

func logClosed(logger logging.Logger, kind string) {
	logging.Or(logger).Warning().
		Err(ErrClosed).
		Str(`scheduler`, kind).
		Log(`scheduler: task dropped`)
}
