//go:build linux || darwin

package runloop

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var errWakerClosed = errors.New(`runloop: waker closed`)

// waker blocks the loop goroutine in poll(2) until the wake fd is written.
type waker struct {
	mu     sync.RWMutex
	rfd    int
	wfd    int
	buf    [8]byte
	closed bool
}

func newWaker() (*waker, error) {
	rfd, wfd, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &waker{rfd: rfd, wfd: wfd}, nil
}

// wake is safe to call from any goroutine, including after close.
func (w *waker) wake() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWakerClosed
	}
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, err := unix.Write(w.wfd, b[:])
	if err == unix.EAGAIN {
		// counter or pipe already full, a wake-up is pending regardless
		return nil
	}
	return err
}

// wait must only be called by the loop goroutine, while it holds a reference
// to the loop (so close cannot run concurrently). A negative timeout blocks
// indefinitely.
func (w *waker) wait(timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(w.rfd), Events: unix.POLLIN}}
	_, err := unix.Poll(fds, pollTimeout(timeout))
	if err == unix.EINTR {
		err = nil
	}
	w.drain()
	return err
}

func (w *waker) drain() {
	for {
		if _, err := unix.Read(w.rfd, w.buf[:]); err != nil {
			break
		}
	}
}

func (w *waker) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := unix.Close(w.rfd)
	if w.wfd != w.rfd {
		if e := unix.Close(w.wfd); err == nil {
			err = e
		}
	}
	return err
}

// pollTimeout converts to milliseconds, rounding sub-millisecond waits up.
func pollTimeout(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d > 0 && d < time.Millisecond {
		return 1
	}
	return int(d.Milliseconds())
}
