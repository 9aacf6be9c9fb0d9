// Package goroutineid identifies the calling goroutine.
//
// Go deliberately has no goroutine-local storage, but confinement checks need
// a stable answer to "which execution context am I on". The id is parsed
// from the header of [runtime.Stack], which has the form "goroutine 123 [".
package goroutineid

import (
	"runtime"
)

// Main is the id of the goroutine running main.main.
const Main uint64 = 1

// Get returns the current goroutine's id. It never returns 0.
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
