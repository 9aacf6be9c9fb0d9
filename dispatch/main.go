package dispatch

import (
	"sync"

	"github.com/joeycumines/go-scheduler/runloop"
)

var mainQueue struct {
	q    *Queue
	once sync.Once
}

// Main returns the main queue. Its tasks run on the main goroutine, performed
// by a source on [runloop.Main], in DefaultMode. The first call binds the
// main loop, see [runloop.BindMain].
func Main() *Queue {
	mainQueue.once.Do(func() {
		q := &Queue{
			label: `main`,
			class: ClassMain,
			loop:  runloop.Main(),
		}
		q.refs.Store(1)
		q.source = runloop.NewSource(0, runloop.SourceContext{
			Info: q,
			Perform: func(info any) {
				info.(*Queue).drainMain()
			},
		})
		q.loop.AddSource(q.source, runloop.DefaultMode)
		mainQueue.q = q
	})
	return mainQueue.q
}
