package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-scheduler/internal/logging"
	"github.com/joeycumines/go-scheduler/runloop"
)

// Attr selects the kind of queue NewQueue creates. The zero value is
// AttrSerial.
type Attr int

const (
	// AttrSerial creates a queue that runs one task at a time, in order.
	AttrSerial Attr = iota
	// AttrConcurrent creates a queue that runs every task on its own
	// goroutine.
	AttrConcurrent
)

// Class reports what kind of queue a Queue is.
type Class int

const (
	ClassSerial Class = iota + 1
	ClassConcurrent
	ClassMain
)

// String returns a human-readable representation of the class.
func (c Class) String() string {
	switch c {
	case ClassSerial:
		return "Serial"
	case ClassConcurrent:
		return "Concurrent"
	case ClassMain:
		return "Main"
	default:
		return "Unknown"
	}
}

// Queue is a work queue. See the package documentation.
type Queue struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger logging.Logger

	specific map[*Key]any
	tasks    []func()

	// main queue only
	source *runloop.Source
	loop   *runloop.Loop

	label string
	class Class

	refs   atomic.Int64
	queued atomic.Int64

	specificMu sync.RWMutex
	mu         sync.Mutex

	draining bool
	released bool
}

// NewQueue creates a queue with one reference owned by the caller. Any attr
// other than AttrConcurrent creates a serial queue.
func NewQueue(label string, attr Attr, opts ...Option) *Queue {
	cfg := resolveQueueOptions(opts)
	class := ClassSerial
	if attr == AttrConcurrent {
		class = ClassConcurrent
	}
	q := &Queue{
		logger: cfg.logger,
		label:  label,
		class:  class,
	}
	q.refs.Store(1)
	return q
}

// Label returns the label the queue was created with.
func (q *Queue) Label() string {
	return q.label
}

// Class returns the kind of queue.
func (q *Queue) Class() Class {
	return q.class
}

// Len returns the number of submitted tasks that have not started yet.
func (q *Queue) Len() int {
	return int(q.queued.Load())
}

// Async submits fn, returning immediately. A nil fn is ignored. Submitting
// to a released queue drops fn, and logs an error.
func (q *Queue) Async(fn func()) {
	if fn == nil {
		return
	}

	switch q.class {
	case ClassMain:
		q.mu.Lock()
		q.tasks = append(q.tasks, fn)
		q.queued.Add(1)
		q.mu.Unlock()
		q.source.Signal()
		q.loop.WakeUp()

	case ClassConcurrent:
		q.mu.Lock()
		if q.released {
			q.mu.Unlock()
			q.dropped()
			return
		}
		q.refs.Add(1)
		q.queued.Add(1)
		q.mu.Unlock()
		go q.runDetached(fn)

	default:
		q.mu.Lock()
		if q.released {
			q.mu.Unlock()
			q.dropped()
			return
		}
		q.tasks = append(q.tasks, fn)
		q.queued.Add(1)
		start := !q.draining
		if start {
			// the drain holds a reference until the queue is empty
			q.draining = true
			q.refs.Add(1)
		}
		q.mu.Unlock()
		if start {
			go q.drain()
		}
	}
}

// Retain adds a reference. It fails with ErrQueueReleased once the last
// reference has been released. The main queue is never released.
func (q *Queue) Retain() error {
	if q.class == ClassMain {
		return nil
	}
	for {
		n := q.refs.Load()
		if n <= 0 {
			return ErrQueueReleased
		}
		if q.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference. Work submitted after the last reference is
// dropped is discarded.
func (q *Queue) Release() {
	if q.class == ClassMain {
		return
	}
	switch n := q.refs.Add(-1); {
	case n == 0:
		q.mu.Lock()
		q.released = true
		q.mu.Unlock()
	case n < 0:
		panic(`dispatch: queue over-released`)
	}
}

// SetSpecific associates value with key, on this queue. A nil value removes
// the association.
func (q *Queue) SetSpecific(key *Key, value any) {
	q.specificMu.Lock()
	defer q.specificMu.Unlock()
	if value == nil {
		delete(q.specific, key)
		return
	}
	if q.specific == nil {
		q.specific = make(map[*Key]any)
	}
	q.specific[key] = value
}

// GetSpecific returns the value associated with key, on this queue, or nil.
func (q *Queue) GetSpecific(key *Key) any {
	q.specificMu.RLock()
	defer q.specificMu.RUnlock()
	return q.specific[key]
}

// drain runs the serial queue's tasks, until it is empty.
func (q *Queue) drain() {
	defer q.Release()
	gid := enterQueue(q)
	defer exitQueue(gid, q)

	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		if len(tasks) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		for i, fn := range tasks {
			tasks[i] = nil
			q.run(fn)
		}
	}
}

// drainMain runs the main queue's tasks, on the main loop.
func (q *Queue) drainMain() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for i, fn := range tasks {
		tasks[i] = nil
		q.run(fn)
	}
}

func (q *Queue) runDetached(fn func()) {
	defer q.Release()
	gid := enterQueue(q)
	defer exitQueue(gid, q)
	q.run(fn)
}

func (q *Queue) run(fn func()) {
	q.queued.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logging.Recovered(q.logger, `dispatch`, r)
		}
	}()
	fn()
}

func (q *Queue) dropped() {
	logging.Or(q.logger).Err().
		Err(ErrQueueReleased).
		Str(`label`, q.label).
		Str(`class`, q.class.String()).
		Log(`dispatch: task dropped`)
}
