package runloop

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-scheduler/internal/goroutineid"
)

// registry maps goroutines to the loop bound to them.
var registry struct {
	main      *Loop
	loops     sync.Map // map[uint64]*Loop
	mainOwner atomic.Uint64
	mu        sync.Mutex
}

func init() {
	registry.mainOwner.Store(goroutineid.Main)
}

// Current returns the calling goroutine's loop, creating and binding one on
// first use. The registry owns the returned loop's reference, see Detach.
// Goroutines have no exit hook, so a goroutine other than the main goroutine
// must call Detach before it exits, or its loop is never released.
func Current() *Loop {
	gid := goroutineid.Get()
	if l, ok := registry.loops.Load(gid); ok {
		return l.(*Loop)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if l, ok := registry.loops.Load(gid); ok {
		return l.(*Loop)
	}

	if gid == registry.mainOwner.Load() {
		return mainLocked()
	}

	l := mustNew()
	l.owner.Store(gid)
	l.registryOwned = true
	registry.loops.Store(gid, l)
	return l
}

// Peek returns the calling goroutine's loop, or nil, without creating one.
func Peek() *Loop {
	if l, ok := registry.loops.Load(goroutineid.Get()); ok {
		return l.(*Loop)
	}
	return nil
}

// Detach drops the registry's reference to the calling goroutine's loop,
// created by Current. The main loop is never detached.
func Detach() {
	gid := goroutineid.Get()

	registry.mu.Lock()
	v, ok := registry.loops.Load(gid)
	if !ok {
		registry.mu.Unlock()
		return
	}
	l := v.(*Loop)
	if l == registry.main {
		registry.mu.Unlock()
		return
	}
	registry.loops.Delete(gid)
	owned := l.registryOwned
	l.registryOwned = false
	registry.mu.Unlock()

	if owned {
		l.Release()
	}
}

// Main returns the main loop, bound to the goroutine running main.main, or
// to the goroutine that called BindMain.
func Main() *Loop {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return mainLocked()
}

// BindMain makes the calling goroutine the main goroutine. It must be called
// before the main loop is first used, e.g. by programs that drive their
// primary loop from a goroutine other than main.main.
func BindMain() error {
	gid := goroutineid.Get()

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.main != nil {
		return ErrMainBound
	}
	if _, ok := registry.loops.Load(gid); ok {
		return ErrGoroutineHasLoop
	}
	registry.mainOwner.Store(gid)
	return nil
}

// IsMainThread reports whether the caller is on the main goroutine. The main
// loop will presumably be run there eventually, even if it is not yet.
func IsMainThread() bool {
	return goroutineid.Get() == registry.mainOwner.Load()
}

func mainLocked() *Loop {
	if registry.main == nil {
		l := mustNew(WithName(`main`))
		owner := registry.mainOwner.Load()
		l.owner.Store(owner)
		l.registryOwned = true
		registry.main = l
		registry.loops.Store(owner, l)
	}
	return registry.main
}

func mustNew(opts ...Option) *Loop {
	l, err := New(opts...)
	if err != nil {
		panic(fmt.Errorf(`runloop: failed to allocate loop: %w`, err))
	}
	return l
}

// bind associates an explicitly created loop with the goroutine that first
// runs it.
func bind(gid uint64, l *Loop) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if v, ok := registry.loops.Load(gid); ok && v.(*Loop) != l {
		return ErrGoroutineHasLoop
	}
	registry.loops.Store(gid, l)
	return nil
}

func unregister(l *Loop) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if owner := l.owner.Load(); owner != 0 {
		registry.loops.CompareAndDelete(owner, l)
	}
	if registry.main == l {
		registry.main = nil
	}
}
