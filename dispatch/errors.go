package dispatch

import (
	"errors"
)

// ErrQueueReleased is returned when retaining a queue whose last reference
// was released. It is also logged when work is submitted to such a queue.
var ErrQueueReleased = errors.New(`dispatch: queue has been released`)
