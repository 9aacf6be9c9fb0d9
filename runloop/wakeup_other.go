//go:build !linux && !darwin

package runloop

import (
	"errors"
	"sync/atomic"
	"time"
)

var errWakerClosed = errors.New(`runloop: waker closed`)

// waker is the portable fallback, a single-slot channel.
type waker struct {
	ch     chan struct{}
	closed atomic.Bool
}

func newWaker() (*waker, error) {
	return &waker{ch: make(chan struct{}, 1)}, nil
}

func (w *waker) wake() error {
	if w.closed.Load() {
		return errWakerClosed
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
	return nil
}

func (w *waker) wait(timeout time.Duration) error {
	if w.closed.Load() {
		return errWakerClosed
	}
	if timeout < 0 {
		<-w.ch
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.ch:
	case <-timer.C:
	}
	return nil
}

func (w *waker) close() error {
	w.closed.Store(true)
	return nil
}
