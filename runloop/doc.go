// Package runloop implements goroutine-confined run loops with signalable
// sources.
//
// A [Loop] belongs to exactly one goroutine, and only that goroutine may run
// it. Work reaches a loop through a [Source]: any goroutine may [Source.Signal]
// a source, after which the loop will call the source's perform callback, on
// the loop goroutine, the next time it iterates. Signalling a source does not
// wake a loop that is blocked waiting for events, use [Loop.WakeUp] for that.
//
// Sources carry a [SourceContext], a small capability object made of an
// opaque Info value plus Retain, Release and Perform callbacks. The loop
// machinery holds its own references to sources it contains, which means the
// context may outlive the code that created the source: invalidating a
// source detaches it from its loops, but each loop only drops its reference
// on its own goroutine (or when the loop itself is released).
//
// # Ownership
//
// Loops and sources are reference counted, mirroring the retain/release
// discipline of host run loops. [New] returns a loop with one reference owned
// by the caller. [Current] and [Main] return loops owned by a per-goroutine
// registry, and the caller must [Loop.Retain] them to keep them beyond
// [Detach].
//
// # Platform Support
//
// Blocking waits use a wake-up file descriptor polled with poll(2), allocated
// the first time the loop sleeps:
//   - Linux: eventfd
//   - macOS: self-pipe
//   - others: a channel
//
// # Usage
//
//	loop := runloop.Current()
//	src := runloop.NewSource(0, runloop.SourceContext{
//	    Perform: func(any) { fmt.Println("performed") },
//	})
//	defer src.Release()
//	loop.AddSource(src, runloop.DefaultMode)
//
//	go func() {
//	    src.Signal()
//	    loop.WakeUp()
//	}()
//
//	_, err := loop.RunInMode(ctx, runloop.DefaultMode, time.Second, true)
package runloop
