// Package scheduler confines work to the execution context that owns it.
//
// A [Scheduler] accepts tasks from any goroutine and runs them later, in
// order, on the context it is bound to. Code that owns state which must only
// be touched from one context (a goroutine running a [runloop.Loop], or a
// serial [dispatch.Queue]) hands mutations to the matching scheduler instead
// of touching that state directly:
//
//	if s.IsOnThread() {
//	    mutate()
//	} else {
//	    s.Invoke(mutate)
//	}
//
// There are two backends:
//   - [RunLoopScheduler] buffers tasks in an [InvocationQueue], and drains it
//     from a source performed by the bound loop.
//   - [QueueScheduler] submits each task to a serial (or the main) dispatch
//     queue.
//
// [Default] picks the backend for the calling goroutine.
//
// # Lifetime
//
// A run loop scheduler's buffered tasks are owned jointly by the scheduler
// and by the loop, which holds its own reference to the scheduler's source.
// [RunLoopScheduler.Close] therefore does not free the buffer immediately:
// the buffer is discarded only once the loop drops its reference, which it
// does on its own goroutine.
//
// # Unbounded Queues
//
// Tasks invoked on a scheduler whose loop is never run again accumulate
// without bound, until the scheduler is closed. Keeping the loop running is
// the caller's responsibility. [WithBacklogWarning] logs a (rate limited)
// warning once a backlog builds up.
package scheduler
