package dispatch

import (
	"sync"

	"github.com/joeycumines/go-scheduler/internal/goroutineid"
	"github.com/joeycumines/go-scheduler/runloop"
)

// Key identifies a queue-specific value. Keys compare by identity.
type Key struct {
	name string
}

// NewKey returns a new key, distinct from every other key. The name is only
// used for display.
func NewKey(name string) *Key {
	return &Key{name: name}
}

func (k *Key) String() string {
	return k.name
}

// executing maps goroutine ids to the queue they are running a task for.
var executing sync.Map // map[uint64]*Queue

func enterQueue(q *Queue) (gid uint64) {
	gid = goroutineid.Get()
	executing.Store(gid, q)
	return gid
}

func exitQueue(gid uint64, q *Queue) {
	executing.CompareAndDelete(gid, q)
}

// Current returns the queue the calling goroutine is running a task for. The
// main goroutine is always considered to be on the main queue. Otherwise, if
// the caller is not running a queue's task, Current returns nil.
func Current() *Queue {
	if v, ok := executing.Load(goroutineid.Get()); ok {
		return v.(*Queue)
	}
	if runloop.IsMainThread() {
		return Main()
	}
	return nil
}

// GetSpecific returns the value for key, of the queue the calling goroutine
// is running a task for, or nil.
func GetSpecific(key *Key) any {
	if q := Current(); q != nil {
		return q.GetSpecific(key)
	}
	return nil
}
