package scheduler

import (
	"sync/atomic"

	"github.com/joeycumines/go-scheduler/internal/logging"
	"github.com/joeycumines/go-scheduler/runloop"
)

// queueHolder shares an InvocationQueue between a RunLoopScheduler and the
// loop machinery, via the source context's retain and release callbacks.
// The queue is closed when the last reference is dropped, which may be
// after the scheduler itself was closed.
type queueHolder struct {
	logger logging.Logger
	queue  InvocationQueue
	refs   atomic.Int64
}

func newQueueHolder(logger logging.Logger) *queueHolder {
	h := &queueHolder{logger: logger}
	h.queue.logger = logger
	return h
}

func (h *queueHolder) retain() {
	h.refs.Add(1)
}

func (h *queueHolder) release() {
	switch n := h.refs.Add(-1); {
	case n == 0:
		h.destroy()
	case n < 0:
		panic(`scheduler: queue holder over-released`)
	}
}

func (h *queueHolder) destroy() {
	discarded := h.queue.close()
	logging.Or(h.logger).Debug().
		Int(`discarded`, discarded).
		Log(`scheduler: invocation queue destroyed`)
}

// sourceContext is the capability object handed to the loop.
func (h *queueHolder) sourceContext() runloop.SourceContext {
	return runloop.SourceContext{
		Info:    h,
		Retain:  retainHolder,
		Release: releaseHolder,
		Perform: performHolder,
	}
}

func retainHolder(info any) {
	info.(*queueHolder).retain()
}

func releaseHolder(info any) {
	info.(*queueHolder).release()
}

func performHolder(info any) {
	info.(*queueHolder).queue.InvokeAll()
}
