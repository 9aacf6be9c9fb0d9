package runloop

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-scheduler/internal/logging"
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

func newTestLogger(w *syncBuffer) logging.Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(``),
		),
	).Logger()
}

// startLoop runs a new loop on its own goroutine, until the test ends.
func startLoop(t *testing.T, hooks *loopTestHooks, opts ...Option) *Loop {
	t.Helper()

	l, err := New(opts...)
	require.NoError(t, err)
	l.testHooks = hooks

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && err != context.Canceled {
				t.Errorf(`unexpected run error: %v`, err)
			}
		case <-time.After(5 * time.Second):
			t.Error(`loop did not stop`)
		}
		l.Release()
	})

	waitForState(t, l, StateRunning, StateSleeping)

	return l
}

func waitForState(t *testing.T, l *Loop, states ...LoopState) {
	t.Helper()
	require.Eventually(t, func() bool {
		current := l.State()
		for _, s := range states {
			if current == s {
				return true
			}
		}
		return false
	}, 5*time.Second, time.Millisecond, `expected one of %v`, states)
}

// onGoroutine runs fn on a fresh goroutine, so that loops bound by it don't
// leak into the test goroutine's registry entry.
func onGoroutine(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal(`timed out`)
	}
}
