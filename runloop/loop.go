package runloop

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-scheduler/internal/goroutineid"
	"github.com/joeycumines/go-scheduler/internal/logging"
)

// Mode names a set of sources. A loop run in a mode only performs the
// sources added to that mode.
type Mode string

// DefaultMode is the mode most sources are added to, and the mode Run uses.
const DefaultMode Mode = `default`

// RunResult reports why RunInMode returned.
type RunResult int

const (
	// RunFinished indicates the mode had no sources.
	RunFinished RunResult = iota + 1
	// RunStopped indicates Stop was called, or the context was done.
	RunStopped
	// RunTimedOut indicates the timeout elapsed.
	RunTimedOut
	// RunHandledSource indicates a source was performed, and the run was
	// asked to return after the first one.
	RunHandledSource
)

// String returns a human-readable representation of the result.
func (r RunResult) String() string {
	switch r {
	case RunFinished:
		return "Finished"
	case RunStopped:
		return "Stopped"
	case RunTimedOut:
		return "TimedOut"
	case RunHandledSource:
		return "HandledSource"
	default:
		return "Unknown"
	}
}

// loopTestHooks provides injection points for deterministic race testing.
type loopTestHooks struct {
	PreSleep func() // Called after the transition to StateSleeping, before the final work check
}

// Loop is a goroutine-confined run loop. See the package documentation.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	// HOOKS: Test hooks for deterministic race testing
	testHooks *loopTestHooks

	logger logging.Logger
	name   string

	// allocated by the first sleep, see ensureWaker
	waker atomic.Pointer[waker]

	// current mode while running, nil otherwise, readable from any goroutine
	mode atomic.Pointer[Mode]

	// sources and ops are guarded by mu, sources is nil once terminated
	sources map[Mode][]*Source
	ops     []func()
	scratch []*Source // loop goroutine only

	id       uint64
	maxSleep time.Duration

	state fastState

	refs        atomic.Int64
	owner       atomic.Uint64
	stop        atomic.Bool
	wakePending atomic.Uint32

	mu sync.Mutex

	// registryOwned indicates the registry holds a reference, guarded by
	// registry.mu
	registryOwned bool
}

var loopIDCounter atomic.Uint64

// New creates an unbound loop, with one reference owned by the caller. The
// loop binds to the first goroutine that runs it.
func New(opts ...Option) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:       loopIDCounter.Add(1),
		name:     cfg.name,
		maxSleep: cfg.maxSleep,
		logger:   cfg.logger,
		sources:  make(map[Mode][]*Source),
	}
	l.refs.Store(1)

	return l, nil
}

// ID returns a process-unique identifier for the loop.
func (l *Loop) ID() uint64 {
	return l.id
}

// Name returns the name configured via WithName.
func (l *Loop) Name() string {
	return l.name
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.load()
}

// Owner returns the id of the goroutine the loop is bound to, or 0.
func (l *Loop) Owner() uint64 {
	return l.owner.Load()
}

// CurrentMode returns the mode the loop is currently running in. The second
// result is false unless the loop is inside Run or RunInMode.
func (l *Loop) CurrentMode() (Mode, bool) {
	if m := l.mode.Load(); m != nil {
		return *m, true
	}
	return ``, false
}

// Retain adds a reference. It fails with ErrLoopTerminated once the last
// reference has been released.
func (l *Loop) Retain() error {
	for {
		n := l.refs.Load()
		if n <= 0 {
			return ErrLoopTerminated
		}
		if l.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference. Dropping the last one terminates the loop,
// releasing every source it still contains.
func (l *Loop) Release() {
	switch n := l.refs.Add(-1); {
	case n == 0:
		l.terminate()
	case n < 0:
		panic(`runloop: loop over-released`)
	}
}

// Run runs the loop in DefaultMode until Stop is called (returning nil) or
// ctx is done (returning ctx.Err()). Unlike RunInMode, it keeps running when
// the mode has no sources.
func (l *Loop) Run(ctx context.Context) error {
	_, err := l.run(ctx, DefaultMode, -1, false, true)
	return err
}

// RunInMode runs the loop in mode. A negative timeout means no timeout, and
// a zero timeout performs a single pass. If returnAfterSourceHandled is set,
// the run returns after the first pass that performed a source.
//
// It must be called from the goroutine the loop is bound to, binding it if
// necessary, and may not be nested.
func (l *Loop) RunInMode(ctx context.Context, mode Mode, timeout time.Duration, returnAfterSourceHandled bool) (RunResult, error) {
	return l.run(ctx, mode, timeout, returnAfterSourceHandled, false)
}

// Stop makes the current (or next) run return RunStopped.
func (l *Loop) Stop() {
	l.stop.Store(true)
	l.WakeUp()
}

// WakeUp wakes the loop if it is blocked waiting for events. It is safe to
// call from any goroutine, at any time.
func (l *Loop) WakeUp() {
	if l.state.load() != StateSleeping {
		// a loop that is about to sleep re-checks for work after the
		// transition, see sleep
		return
	}
	if l.wakePending.CompareAndSwap(0, 1) {
		// published before the transition to StateSleeping
		w := l.waker.Load()
		if w == nil {
			l.wakePending.Store(0)
			return
		}
		if err := w.wake(); err != nil {
			// closed during termination, nothing left to wake
			l.wakePending.Store(0)
		}
	}
}

// AddSource adds s to the loop, in mode. The loop retains the source until
// it is removed, invalidated, or the loop terminates. Adding an invalidated
// source, or a source already in mode, does nothing.
func (l *Loop) AddSource(s *Source, mode Mode) {
	if s == nil || !s.attach(l) {
		return
	}

	l.mu.Lock()
	if l.sources == nil || !s.IsValid() || slices.Contains(l.sources[mode], s) {
		l.mu.Unlock()
		s.detach(l)
		return
	}
	list := l.sources[mode]
	i, _ := slices.BinarySearchFunc(list, s.order, func(e *Source, order int) int {
		if e.order <= order {
			return -1
		}
		return 1
	})
	l.sources[mode] = slices.Insert(list, i, s)
	// retained while locked, removeAll may release it as soon as it is visible
	s.Retain()
	l.mu.Unlock()
}

// RemoveSource removes s from mode, dropping the loop's reference.
func (l *Loop) RemoveSource(s *Source, mode Mode) {
	l.mu.Lock()
	list := l.sources[mode]
	i := slices.Index(list, s)
	if i < 0 {
		l.mu.Unlock()
		return
	}
	l.sources[mode] = slices.Delete(list, i, i+1)
	l.mu.Unlock()

	s.detach(l)
	s.Release()
}

// ContainsSource reports whether s is in mode.
func (l *Loop) ContainsSource(s *Source, mode Mode) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.sources[mode], s)
}

func (l *Loop) run(ctx context.Context, mode Mode, timeout time.Duration, returnAfterSourceHandled, keepAlive bool) (RunResult, error) {
	if err := l.enter(); err != nil {
		return 0, err
	}
	defer l.exit()

	if !keepAlive && !l.hasSources(mode) {
		return RunFinished, nil
	}

	m := mode
	l.mode.Store(&m)
	defer l.mode.Store(nil)

	if ctx.Done() != nil {
		stopWatch := context.AfterFunc(ctx, l.WakeUp)
		defer stopWatch()
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		l.runOps()

		handled := l.performSources(mode)
		if handled && returnAfterSourceHandled {
			return RunHandledSource, nil
		}

		if l.stop.CompareAndSwap(true, false) {
			return RunStopped, nil
		}

		if err := ctx.Err(); err != nil {
			return RunStopped, err
		}

		if !keepAlive && !l.hasSources(mode) {
			return RunFinished, nil
		}

		wait := l.maxSleep
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return RunTimedOut, nil
			}
			wait = min(wait, remaining)
		}

		if handled {
			// performing may have signalled more work
			continue
		}

		if err := l.sleep(ctx, mode, wait); err != nil {
			return 0, err
		}
	}
}

// enter validates ownership and reentrancy, taking a reference for the
// duration of the run.
func (l *Loop) enter() error {
	if err := l.Retain(); err != nil {
		return err
	}

	gid := goroutineid.Get()
	if !l.owner.CompareAndSwap(0, gid) {
		if l.owner.Load() != gid {
			l.Release()
			return ErrNotOwner
		}
	} else if err := bind(gid, l); err != nil {
		l.owner.Store(0)
		l.Release()
		return err
	}

	if !l.state.tryTransition(StateAwake, StateRunning) {
		l.Release()
		return ErrReentrantRun
	}

	l.stop.Store(false)

	return nil
}

func (l *Loop) exit() {
	l.state.tryTransition(StateRunning, StateAwake)
	l.Release()
}

// sleep blocks until woken, or wait elapses.
func (l *Loop) sleep(ctx context.Context, mode Mode, wait time.Duration) error {
	w, err := l.ensureWaker()
	if err != nil {
		return err
	}

	if !l.state.tryTransition(StateRunning, StateSleeping) {
		return nil
	}

	// HOOKS: Call test hook after the state transition
	if l.testHooks != nil && l.testHooks.PreSleep != nil {
		l.testHooks.PreSleep()
	}

	// anything that raced with the transition is visible from here on
	if l.hasWork(ctx, mode) {
		l.state.tryTransition(StateSleeping, StateRunning)
		return nil
	}

	if err := w.wait(wait); err != nil {
		logging.Or(l.logger).Err().
			Err(err).
			Uint64(`loop`, l.id).
			Str(`name`, l.name).
			Log(`runloop: wait failed`)
	}

	l.wakePending.Store(0)
	l.state.tryTransition(StateSleeping, StateRunning)
	return nil
}

// ensureWaker allocates the wake-up resources on first use, so a loop that
// never blocks holds no file descriptors. Loop goroutine only.
func (l *Loop) ensureWaker() (*waker, error) {
	if w := l.waker.Load(); w != nil {
		return w, nil
	}
	w, err := newWaker()
	if err != nil {
		return nil, fmt.Errorf(`runloop: failed to allocate waker: %w`, err)
	}
	l.waker.Store(w)
	return w, nil
}

func (l *Loop) hasWork(ctx context.Context, mode Mode) bool {
	if l.stop.Load() || ctx.Err() != nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ops) != 0 {
		return true
	}
	for _, s := range l.sources[mode] {
		if s.IsValid() && s.IsSignaled() {
			return true
		}
	}
	return false
}

func (l *Loop) hasSources(mode Mode) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sources[mode]) != 0
}

// performSources performs every signalled source in mode, in order.
func (l *Loop) performSources(mode Mode) (handled bool) {
	l.mu.Lock()
	sources := append(l.scratch[:0], l.sources[mode]...)
	for _, s := range sources {
		s.Retain()
	}
	l.mu.Unlock()

	for i, s := range sources {
		if s.IsValid() && s.signaled.CompareAndSwap(true, false) {
			l.perform(s)
			handled = true
		}
		s.Release()
		sources[i] = nil
	}

	l.scratch = sources[:0]

	return handled
}

func (l *Loop) perform(s *Source) {
	defer func() {
		if r := recover(); r != nil {
			logging.Recovered(l.logger, `perform`, r)
		}
	}()
	s.perform()
}

// post queues fn to run on the loop goroutine. Ops posted to a terminated
// loop are dropped.
func (l *Loop) post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sources == nil {
		return
	}
	l.ops = append(l.ops, fn)
}

func (l *Loop) runOps() {
	l.mu.Lock()
	ops := l.ops
	l.ops = nil
	l.mu.Unlock()
	for _, fn := range ops {
		fn()
	}
}

// removeAll removes s from every mode.
func (l *Loop) removeAll(s *Source) {
	var n int
	l.mu.Lock()
	for mode, list := range l.sources {
		if i := slices.Index(list, s); i >= 0 {
			l.sources[mode] = slices.Delete(list, i, i+1)
			n++
		}
	}
	l.mu.Unlock()

	for range n {
		s.detach(l)
		s.Release()
	}
}

func (l *Loop) terminate() {
	l.state.store(StateTerminated)

	unregister(l)

	l.mu.Lock()
	sources := l.sources
	l.sources = nil
	l.ops = nil
	l.mu.Unlock()

	var released int
	for _, list := range sources {
		for _, s := range list {
			s.detach(l)
			s.Release()
			released++
		}
	}

	// no run is in progress, it would hold a reference
	if w := l.waker.Load(); w != nil {
		if err := w.close(); err != nil {
			logging.Or(l.logger).Warning().
				Err(err).
				Uint64(`loop`, l.id).
				Log(`runloop: failed to close waker`)
		}
	}

	logging.Or(l.logger).Debug().
		Uint64(`loop`, l.id).
		Str(`name`, l.name).
		Int(`sources`, released).
		Log(`runloop: terminated`)
}
