package scheduler

import (
	"sync"

	"github.com/joeycumines/go-scheduler/internal/logging"
)

// chunkSize is the number of tasks per node in a taskList.
const chunkSize = 128

// taskList is a chunked linked-list FIFO of tasks.
//
// It is NOT thread-safe, the caller must provide external synchronization.
type taskList struct { // betteralign:ignore
	head   *chunk
	tail   *chunk
	length int
}

// chunkPool recycles chunks across drains.
var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

// chunk is a fixed-size node in a taskList, with read/write cursors.
type chunk struct {
	tasks   [chunkSize]Task
	next    *chunk
	readPos int
	pos     int
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk clears any retained tasks before pooling c.
func returnChunk(c *chunk) {
	for i := c.readPos; i < c.pos; i++ {
		c.tasks[i] = nil
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

func (x *taskList) push(task Task) {
	if x.tail == nil {
		x.tail = newChunk()
		x.head = x.tail
	}

	if x.tail.pos == len(x.tail.tasks) {
		next := newChunk()
		x.tail.next = next
		x.tail = next
	}

	x.tail.tasks[x.tail.pos] = task
	x.tail.pos++
	x.length++
}

func (x *taskList) pop() (Task, bool) {
	for x.head != nil {
		if x.head.readPos < x.head.pos {
			task := x.head.tasks[x.head.readPos]
			x.head.tasks[x.head.readPos] = nil
			x.head.readPos++
			x.length--
			return task, true
		}
		old := x.head
		x.head = old.next
		returnChunk(old)
	}
	x.tail = nil
	return nil, false
}

// clear drops every task, returning how many there were.
func (x *taskList) clear() int {
	n := x.length
	for c := x.head; c != nil; {
		next := c.next
		returnChunk(c)
		c = next
	}
	*x = taskList{}
	return n
}

// InvocationQueue is an ordered buffer of deferred tasks. Any number of
// goroutines may Push concurrently, while a single consumer drains it with
// InvokeAll. The zero value is ready to use.
type InvocationQueue struct {
	logger logging.Logger
	tasks  taskList
	mu     sync.Mutex
	closed bool
}

// Push appends task. A nil task is ignored.
func (q *InvocationQueue) Push(task Task) {
	q.push(task)
}

// InvokeAll runs every task that was buffered when it was called, in the
// order they were pushed, on the calling goroutine. Tasks pushed meanwhile,
// including by the running tasks, are left for the next call. A task that
// panics is logged, and does not prevent the rest from running.
//
// It returns the number of tasks run. InvokeAll must not be called
// concurrently with itself.
func (q *InvocationQueue) InvokeAll() int {
	q.mu.Lock()
	batch := q.tasks
	q.tasks = taskList{}
	q.mu.Unlock()

	var n int
	for {
		task, ok := batch.pop()
		if !ok {
			return n
		}
		n++
		q.invoke(task)
	}
}

// Len returns the number of buffered tasks.
func (q *InvocationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.length
}

// push appends task, returning the new length. It fails once the queue is
// closed.
func (q *InvocationQueue) push(task Task) (int, bool) {
	if task == nil {
		return 0, true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, false
	}
	q.tasks.push(task)
	return q.tasks.length, true
}

// close discards any buffered tasks, returning how many, and drops every
// later push.
func (q *InvocationQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return q.tasks.clear()
}

func (q *InvocationQueue) invoke(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Recovered(q.logger, `task`, r)
		}
	}()
	task()
}
