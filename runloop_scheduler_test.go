package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-scheduler/dispatch"
	"github.com/joeycumines/go-scheduler/internal/goroutineid"
	"github.com/joeycumines/go-scheduler/runloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newRunLoopScheduler(t *testing.T, l *runloop.Loop, opts ...Option) *RunLoopScheduler {
	t.Helper()
	s, err := NewRunLoopScheduler(l, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLoopScheduler_invokeRunsOnLoop(t *testing.T) {
	l := startLoop(t)
	s := newRunLoopScheduler(t, l)
	assert.Same(t, l, s.Loop())

	var gid uint64
	invokeAndWait(t, s, func() {
		gid = goroutineid.Get()
	})
	assert.Equal(t, l.Owner(), gid)
	assert.NotEqual(t, goroutineid.Get(), gid)
}

func TestRunLoopScheduler_order(t *testing.T) {
	l := startLoop(t)
	s := newRunLoopScheduler(t, l)

	const n = 1000
	got := make([]int, 0, n)
	done := make(chan struct{})
	for i := range n {
		s.Invoke(func() {
			got = append(got, i)
			if i == n-1 {
				close(done)
			}
		})
	}
	waitFor(t, done)

	require.Len(t, got, n)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestRunLoopScheduler_neverSynchronous(t *testing.T) {
	l := startLoop(t)
	s := newRunLoopScheduler(t, l)

	var ran atomic.Bool
	inner := make(chan struct{})
	invokeAndWait(t, s, func() {
		// on the owning goroutine, inside a drain
		s.Invoke(func() {
			ran.Store(true)
			close(inner)
		})
		assert.False(t, ran.Load())
	})
	waitFor(t, inner)

	// not run loop, not run
	idle, err := runloop.New()
	require.NoError(t, err)
	defer idle.Release()
	s2 := newRunLoopScheduler(t, idle)

	var ran2 atomic.Bool
	s2.Invoke(func() { ran2.Store(true) })
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran2.Load())

	onGoroutine(t, func() {
		result, err := idle.RunInMode(context.Background(), runloop.DefaultMode, 0, true)
		assert.NoError(t, err)
		assert.Equal(t, runloop.RunHandledSource, result)
	})
	assert.True(t, ran2.Load())
}

func TestRunLoopScheduler_reentrantInvokeNextDrain(t *testing.T) {
	l, err := runloop.New()
	require.NoError(t, err)
	defer l.Release()
	s := newRunLoopScheduler(t, l)

	var log []string
	s.Invoke(func() {
		log = append(log, `first`)
		s.Invoke(func() { log = append(log, `reentrant`) })
	})
	s.Invoke(func() { log = append(log, `second`) })

	// both runs must happen on the loop's owner
	var afterFirst []string
	onGoroutine(t, func() {
		result, err := l.RunInMode(context.Background(), runloop.DefaultMode, 0, true)
		assert.NoError(t, err)
		assert.Equal(t, runloop.RunHandledSource, result)
		afterFirst = append(afterFirst, log...)

		result, err = l.RunInMode(context.Background(), runloop.DefaultMode, 0, true)
		assert.NoError(t, err)
		assert.Equal(t, runloop.RunHandledSource, result)
	})
	assert.Equal(t, []string{`first`, `second`}, afterFirst)
	assert.Equal(t, []string{`first`, `second`, `reentrant`}, log)
}

func TestRunLoopScheduler_IsOnThread(t *testing.T) {
	l := startLoop(t)
	s := newRunLoopScheduler(t, l)

	assert.False(t, s.IsOnThread())

	var inside bool
	invokeAndWait(t, s, func() { inside = s.IsOnThread() })
	assert.True(t, inside)

	other := newRunLoopScheduler(t, startLoop(t))
	invokeAndWait(t, other, func() { inside = s.IsOnThread() })
	assert.False(t, inside)
}

func TestRunLoopScheduler_IsSameAs(t *testing.T) {
	l1 := startLoop(t)
	l2 := startLoop(t)

	a := newRunLoopScheduler(t, l1)
	b := newRunLoopScheduler(t, l1)
	c := newRunLoopScheduler(t, l2)

	q := dispatch.NewQueue(`same`, dispatch.AttrSerial)
	defer q.Release()
	qs, err := NewQueueScheduler(q)
	require.NoError(t, err)
	defer qs.Close()

	assert.True(t, a.IsSameAs(a))
	assert.True(t, a.IsSameAs(b))
	assert.True(t, b.IsSameAs(a))
	assert.False(t, a.IsSameAs(c))
	assert.False(t, a.IsSameAs(qs))
	assert.False(t, a.IsSameAs(nil))
	assert.False(t, a.IsSameAs((*RunLoopScheduler)(nil)))
}

func TestRunLoopScheduler_CanInvoke(t *testing.T) {
	l := startLoop(t)
	s := newRunLoopScheduler(t, l)

	// no loop
	assert.False(t, s.CanInvoke())

	// inside a perform
	var inside bool
	invokeAndWait(t, s, func() { inside = s.CanInvoke() })
	assert.True(t, inside)

	// a loop that isn't running
	onGoroutine(t, func() {
		_ = runloop.Current()
		assert.False(t, s.CanInvoke())
	})

	// the main goroutine is presumed to be pumped
	prev := isMainThread
	isMainThread = func() bool { return true }
	defer func() { isMainThread = prev }()
	assert.True(t, s.CanInvoke())
}

func TestRunLoopScheduler_nilLoopUsesCurrent(t *testing.T) {
	onGoroutine(t, func() {
		s, err := NewRunLoopScheduler(nil)
		if !assert.NoError(t, err) {
			return
		}
		defer s.Close()
		assert.Same(t, runloop.Current(), s.Loop())
		assert.True(t, s.IsOnThread())
	})
}

func TestRunLoopScheduler_terminatedLoop(t *testing.T) {
	l, err := runloop.New()
	require.NoError(t, err)
	l.Release()

	s, err := NewRunLoopScheduler(l)
	assert.ErrorIs(t, err, runloop.ErrLoopTerminated)
	assert.Nil(t, s)
}

func TestRunLoopScheduler_invalidOptions(t *testing.T) {
	l := startLoop(t)
	for _, opt := range []Option{
		WithBacklogWarning(-1),
		WithBacklogWarningRate(nil),
		WithBacklogWarningRate(map[time.Duration]int{time.Second: 0}),
		WithBacklogWarningRate(map[time.Duration]int{time.Second: 10, time.Minute: 5}),
	} {
		s, err := NewRunLoopScheduler(l, opt)
		assert.Error(t, err)
		assert.Nil(t, s)
	}

	// nil options are skipped
	s, err := NewRunLoopScheduler(l, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

// The loop keeps its reference to the scheduler's source after Close, so
// the buffered tasks live on until the loop gets around to dropping it.
func TestRunLoopScheduler_holderOutlivesClose(t *testing.T) {
	var logs syncBuffer
	logger := newTestLogger(&logs)

	l, err := runloop.New()
	require.NoError(t, err)
	defer l.Release()

	s, err := NewRunLoopScheduler(l, WithLogger(logger))
	require.NoError(t, err)
	h := s.holder
	require.Equal(t, int64(1), h.refs.Load())

	var ran atomic.Bool
	s.Invoke(func() { ran.Store(true) })
	require.Equal(t, 1, h.queue.Len())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// the loop still holds the source, with a pending signal
	assert.Equal(t, int64(1), h.refs.Load())
	assert.Equal(t, 1, h.queue.Len())
	assert.NotContains(t, logs.String(), `invocation queue destroyed`)

	onGoroutine(t, func() {
		result, err := l.RunInMode(context.Background(), runloop.DefaultMode, 0, false)
		assert.NoError(t, err)
		assert.Equal(t, runloop.RunFinished, result)
	})

	assert.False(t, ran.Load(), `invalidated source must not perform`)
	assert.Zero(t, h.refs.Load())
	assert.Zero(t, h.queue.Len())
	assert.Contains(t, logs.String(), `invocation queue destroyed`)
	assert.Contains(t, logs.String(), `"discarded":1`)

	_, ok := h.queue.push(func() {})
	assert.False(t, ok)
}

func TestRunLoopScheduler_holderReleasedWithLoop(t *testing.T) {
	l, err := runloop.New()
	require.NoError(t, err)

	s, err := NewRunLoopScheduler(l)
	require.NoError(t, err)
	h := s.holder
	s.Invoke(func() {})

	require.NoError(t, s.Close())
	require.Equal(t, int64(1), h.refs.Load())

	l.Release()
	assert.Zero(t, h.refs.Load())
	assert.Equal(t, runloop.StateTerminated, l.State())
}

func TestRunLoopScheduler_holderReleasedByRunningLoop(t *testing.T) {
	l := startLoop(t)

	s, err := NewRunLoopScheduler(l)
	require.NoError(t, err)
	h := s.holder

	require.NoError(t, s.Close())
	require.Eventually(t, func() bool { return h.refs.Load() == 0 }, 5*time.Second, time.Millisecond)
	assert.False(t, l.ContainsSource(s.source, runloop.DefaultMode))
}

func TestRunLoopScheduler_invokeAfterClose(t *testing.T) {
	var logs syncBuffer
	l := startLoop(t)

	s, err := NewRunLoopScheduler(l, WithLogger(newTestLogger(&logs)))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	var ran atomic.Bool
	s.Invoke(func() { ran.Store(true) })
	s.Invoke(nil)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, 1, logs.Count(`scheduler: task dropped`))
	assert.Contains(t, logs.String(), ErrClosed.Error())
}

func TestRunLoopScheduler_backlogWarning(t *testing.T) {
	var logs syncBuffer

	// never run
	l, err := runloop.New()
	require.NoError(t, err)
	defer l.Release()

	s := newRunLoopScheduler(t, l,
		WithLogger(newTestLogger(&logs)),
		WithBacklogWarning(3),
		WithBacklogWarningRate(map[time.Duration]int{time.Hour: 1}),
	)

	s.Invoke(func() {})
	s.Invoke(func() {})
	assert.Zero(t, logs.Count(`task backlog`))

	for range 10 {
		s.Invoke(func() {})
	}
	assert.Equal(t, 1, logs.Count(`task backlog`))
	assert.Contains(t, logs.String(), `"pending":3`)
	assert.Contains(t, logs.String(), `"threshold":3`)
}

func TestRunLoopScheduler_concurrentProducers(t *testing.T) {
	l := startLoop(t)
	s := newRunLoopScheduler(t, l)

	const producers, each = 8, 250

	var (
		count atomic.Int64
		last  = make([]int, producers)
		bad   atomic.Bool
	)
	for i := range last {
		last[i] = -1
	}

	var g errgroup.Group
	for p := range producers {
		g.Go(func() error {
			for i := range each {
				s.Invoke(func() {
					// only ever touched on the loop goroutine
					if last[p] != i-1 {
						bad.Store(true)
					}
					last[p] = i
					count.Add(1)
				})
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Eventually(t, func() bool {
		return count.Load() == producers*each
	}, 5*time.Second, time.Millisecond)
	assert.False(t, bad.Load())
}

func TestRunLoopScheduler_threeThreadScenario(t *testing.T) {
	l, err := runloop.New()
	require.NoError(t, err)
	defer l.Release()
	s := newRunLoopScheduler(t, l)

	var log []string
	var g errgroup.Group
	for _, name := range []string{`A`, `B`, `C`} {
		g.Go(func() error {
			s.Invoke(func() { log = append(log, name) })
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// one drain
	onGoroutine(t, func() {
		result, err := l.RunInMode(context.Background(), runloop.DefaultMode, 0, true)
		assert.NoError(t, err)
		assert.Equal(t, runloop.RunHandledSource, result)
	})

	assert.ElementsMatch(t, []string{`A`, `B`, `C`}, log)
}

func TestNewMainScheduler(t *testing.T) {
	startMainLoop(t)

	s, err := NewMainScheduler()
	require.NoError(t, err)
	defer s.Close()
	assert.Same(t, runloop.Main(), s.Loop())

	var onMain, onThread, canInvoke bool
	invokeAndWait(t, s, func() {
		onMain = runloop.IsMainThread()
		onThread = s.IsOnThread()
		canInvoke = s.CanInvoke()
	})
	assert.True(t, onMain)
	assert.True(t, onThread)
	assert.True(t, canInvoke)
	assert.False(t, s.IsOnThread())
}
