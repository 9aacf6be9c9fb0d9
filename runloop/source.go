package runloop

import (
	"sync"
	"sync/atomic"
)

// SourceContext is the capability object a Source hands to the loop
// machinery. All callbacks are optional.
type SourceContext struct {
	// Info is passed to every callback.
	Info any

	// Retain is called once, when the source is created.
	Retain func(info any)

	// Release is called once, when the source's last reference is dropped.
	// Depending on who drops it, that may be long after the creator released
	// its own reference, and on the loop goroutine.
	Release func(info any)

	// Perform is called on the loop goroutine, after the source was
	// signalled.
	Perform func(info any)
}

// Source is a signalable work source that may be added to one or more loops.
//
// A Source starts with a single reference, owned by the caller of
// NewSource. Each loop the source is added to holds another.
type Source struct {
	ctx      SourceContext
	loops    map[*Loop]int
	mu       sync.Mutex
	order    int
	refs     atomic.Int64
	valid    atomic.Bool
	signaled atomic.Bool
}

// NewSource creates a valid, unsignalled source. Within a loop, sources with
// a lower order are performed first.
func NewSource(order int, ctx SourceContext) *Source {
	s := &Source{
		ctx:   ctx,
		order: order,
	}
	s.refs.Store(1)
	s.valid.Store(true)
	if ctx.Retain != nil {
		ctx.Retain(ctx.Info)
	}
	return s
}

// Order returns the order the source was created with.
func (s *Source) Order() int {
	return s.order
}

// Signal marks the source as ready to perform. It does not wake the loop.
// Signalling an invalidated source has no effect.
func (s *Source) Signal() {
	if s.valid.Load() {
		s.signaled.Store(true)
	}
}

// IsSignaled reports whether the source is waiting to be performed.
func (s *Source) IsSignaled() bool {
	return s.signaled.Load()
}

// IsValid reports whether the source has not been invalidated.
func (s *Source) IsValid() bool {
	return s.valid.Load()
}

// Invalidate stops the source from ever performing again, and removes it
// from every loop it was added to. Each loop drops its reference the next
// time it iterates, or when it is terminated, whichever comes first.
func (s *Source) Invalidate() {
	s.mu.Lock()
	if !s.valid.Swap(false) {
		s.mu.Unlock()
		return
	}
	s.signaled.Store(false)
	loops := make([]*Loop, 0, len(s.loops))
	for l := range s.loops {
		loops = append(loops, l)
	}
	s.mu.Unlock()

	for _, l := range loops {
		l.post(func() { l.removeAll(s) })
		l.WakeUp()
	}
}

// Retain adds a reference, returning the receiver.
func (s *Source) Retain() *Source {
	s.refs.Add(1)
	return s
}

// Release drops a reference. Dropping the last one calls the context's
// Release callback.
func (s *Source) Release() {
	switch n := s.refs.Add(-1); {
	case n == 0:
		if s.ctx.Release != nil {
			s.ctx.Release(s.ctx.Info)
		}
	case n < 0:
		panic(`runloop: source over-released`)
	}
}

func (s *Source) perform() {
	if s.ctx.Perform != nil {
		s.ctx.Perform(s.ctx.Info)
	}
}

// attach records membership in l, failing if the source was invalidated.
func (s *Source) attach(l *Loop) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid.Load() {
		return false
	}
	if s.loops == nil {
		s.loops = make(map[*Loop]int)
	}
	s.loops[l]++
	return true
}

func (s *Source) detach(l *Loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.loops[l]; n <= 1 {
		delete(s.loops, l)
	} else {
		s.loops[l] = n - 1
	}
}
