package scheduler

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-scheduler/internal/logging"
	"github.com/joeycumines/go-scheduler/runloop"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func (x *syncBuffer) Count(substr string) int {
	return strings.Count(x.String(), substr)
}

func newTestLogger(w *syncBuffer) logging.Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(``),
		),
		stumpy.L.WithLevel(stumpy.L.LevelDebug()),
	).Logger()
}

// startLoop runs a new loop on its own goroutine, until the test ends.
func startLoop(t *testing.T) *runloop.Loop {
	t.Helper()

	l, err := runloop.New(runloop.WithName(t.Name()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error(`loop did not stop`)
		}
		l.Release()
	})

	require.Eventually(t, func() bool {
		s := l.State()
		return s == runloop.StateRunning || s == runloop.StateSleeping
	}, 5*time.Second, time.Millisecond)

	return l
}

var mainLoop struct {
	err  error
	once sync.Once
}

// startMainLoop binds the main loop to a helper goroutine, and runs it for
// the rest of the test binary.
func startMainLoop(t *testing.T) {
	t.Helper()
	mainLoop.once.Do(func() {
		ready := make(chan error, 1)
		go func() {
			if err := runloop.BindMain(); err != nil {
				ready <- err
				return
			}
			l := runloop.Main()
			ready <- nil
			_ = l.Run(context.Background())
		}()
		mainLoop.err = <-ready
	})
	require.NoError(t, mainLoop.err)
}

// invokeAndWait invokes fn on s, and waits for it to complete.
func invokeAndWait(t *testing.T, s Scheduler, fn func()) {
	t.Helper()
	done := make(chan struct{})
	s.Invoke(func() {
		defer close(done)
		fn()
	})
	waitFor(t, done)
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal(`timed out`)
	}
}

// onGoroutine runs fn on a fresh goroutine, dropping any loop it created.
func onGoroutine(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer runloop.Detach()
		fn()
	}()
	waitFor(t, done)
}
