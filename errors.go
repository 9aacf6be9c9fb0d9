package scheduler

import (
	"errors"
	"fmt"

	"github.com/joeycumines/go-scheduler/dispatch"
)

var (
	// ErrInvalidQueue is matched (via errors.Is) by every *InvalidQueueError.
	ErrInvalidQueue = errors.New(`scheduler: invalid queue`)

	// ErrClosed is logged when a task is invoked on a closed scheduler.
	ErrClosed = errors.New(`scheduler: scheduler closed`)
)

// InvalidQueueError is returned when a QueueScheduler is bound to a queue
// that is neither serial nor the main queue.
type InvalidQueueError struct {
	// Label is the queue's label, empty for a nil queue.
	Label string
	// Class is the queue's class, zero for a nil queue.
	Class dispatch.Class
}

func (e *InvalidQueueError) Error() string {
	label := e.Label
	if label == `` {
		label = `<nil>`
	}
	return fmt.Sprintf(`scheduler: invalid queue '%s' (%s): schedulers can only be confined to serial queues or the main queue`, label, e.Class)
}

func (e *InvalidQueueError) Is(target error) bool {
	return target == ErrInvalidQueue
}
