package scheduler

// Task is a unit of deferred work. A task is run at most once.
type Task func()

// Scheduler runs tasks on the execution context it is bound to.
//
// All methods are safe to call from any goroutine, including from within a
// task run by the scheduler itself.
type Scheduler interface {
	// Invoke arranges for task to run later, on the scheduler's context. It
	// never runs the task before returning. A nil task is ignored.
	Invoke(task Task)

	// IsOnThread reports whether the caller is running on the scheduler's
	// context.
	IsOnThread() bool

	// IsSameAs reports whether other is the same kind of scheduler, bound to
	// the identical context. It is false for a nil other.
	IsSameAs(other Scheduler) bool

	// CanInvoke reports whether the scheduler's context is expected to
	// eventually run invoked tasks. It errs on the side of true.
	CanInvoke() bool

	// Close releases the scheduler's resources. Tasks that have not run yet
	// may be discarded. Close is idempotent.
	Close() error
}
