package scheduler

import (
	"sync"

	"github.com/joeycumines/go-scheduler/dispatch"
	"github.com/joeycumines/go-scheduler/internal/logging"
)

// queueKey tags each queue a QueueScheduler is bound to with the queue
// itself.
var queueKey = dispatch.NewKey(`scheduler`)

// QueueScheduler is a Scheduler bound to a serial dispatch.Queue, or to the
// main queue. Tasks run one at a time, on whichever goroutine is draining
// the queue.
type QueueScheduler struct {
	logger  logging.Logger
	queue   *dispatch.Queue
	backlog *backlog
	mu      sync.RWMutex
	closed  bool
}

var _ Scheduler = (*QueueScheduler)(nil)

// NewQueueScheduler creates a scheduler for q, which it holds a reference to
// until closed. It fails with an *InvalidQueueError if q is nil, or is
// neither serial nor the main queue.
func NewQueueScheduler(q *dispatch.Queue, opts ...Option) (*QueueScheduler, error) {
	if q == nil {
		return nil, &InvalidQueueError{}
	}
	switch q.Class() {
	case dispatch.ClassSerial, dispatch.ClassMain:
	default:
		return nil, &InvalidQueueError{Label: q.Label(), Class: q.Class()}
	}

	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		return nil, err
	}

	b, err := newBacklog(cfg, `queue`)
	if err != nil {
		return nil, err
	}

	if err := q.Retain(); err != nil {
		return nil, err
	}

	if q.GetSpecific(queueKey) == nil {
		q.SetSpecific(queueKey, q)
	}

	return &QueueScheduler{
		logger:  cfg.logger,
		queue:   q,
		backlog: b,
	}, nil
}

// Queue returns the queue the scheduler is bound to.
func (s *QueueScheduler) Queue() *dispatch.Queue {
	return s.queue
}

// Invoke submits task to the queue. Invoking on a closed scheduler drops the
// task, and logs a warning.
func (s *QueueScheduler) Invoke(task Task) {
	if task == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		logClosed(s.logger, `queue`)
		return
	}

	s.queue.Async(s.wrap(task))

	s.backlog.check(s.queue.Len())
}

// IsOnThread reports whether the caller is running a task of the
// scheduler's queue.
func (s *QueueScheduler) IsOnThread() bool {
	return dispatch.GetSpecific(queueKey) == s.queue
}

// IsSameAs reports whether other is a QueueScheduler for the same queue.
func (s *QueueScheduler) IsSameAs(other Scheduler) bool {
	o, ok := other.(*QueueScheduler)
	return ok && o != nil && o.queue == s.queue
}

// CanInvoke is always true, queues always run submitted work eventually.
func (s *QueueScheduler) CanInvoke() bool {
	return true
}

// Close releases the queue. Tasks already submitted still run.
func (s *QueueScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.queue.Release()
	return nil
}

func (s *QueueScheduler) wrap(task Task) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Recovered(s.logger, `task`, r)
			}
		}()
		task()
	}
}
