// Package dispatch implements work queues in the style of serial dispatch
// queues.
//
// A serial [Queue] runs its tasks one at a time, in submission order. It
// owns no goroutine: a transient goroutine drains each burst of submissions,
// so consecutive bursts may run on different goroutines, but never
// concurrently. A concurrent queue runs every task on its own goroutine. The
// [Main] queue is drained by a source on the main run loop, so its tasks run
// on the main goroutine, whenever that goroutine runs [runloop.Main].
//
// Queues carry queue-specific values, set with [Queue.SetSpecific] and read
// from within a task with [GetSpecific], which is how code discovers the
// queue it is running on.
//
// # Ownership
//
// Queues are reference counted. [NewQueue] returns a queue with one
// reference owned by the caller, and pending work keeps a queue alive until
// it has run. The main queue is never released.
//
// # Logging
//
// Dropped tasks and recovered panics are logged to the logger given to
// [NewQueue] with [WithLogger], or else to the process-wide logger, which
// scheduler.SetLogger configures. The main queue always uses the latter.
package dispatch
