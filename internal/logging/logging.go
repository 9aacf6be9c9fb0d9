// Package logging holds the process-wide structured logger shared by the
// scheduler, runloop and dispatch packages.
//
// A nil logger is valid and disables logging, since every logiface builder
// method is nil-safe.
package logging

import (
	"sync"

	"github.com/joeycumines/logiface"
)

// Logger is the logger type accepted throughout this module.
type Logger = *logiface.Logger[logiface.Event]

var global struct {
	sync.RWMutex
	logger Logger
}

// Set replaces the process-wide logger. Passing nil disables logging.
func Set(logger Logger) {
	global.Lock()
	defer global.Unlock()
	global.logger = logger
}

// Get returns the process-wide logger, which may be nil.
func Get() Logger {
	global.RLock()
	defer global.RUnlock()
	return global.logger
}

// Or returns logger if it is non-nil, otherwise the process-wide logger.
func Or(logger Logger) Logger {
	if logger != nil {
		return logger
	}
	return Get()
}

// Recovered logs a recovered panic value at error level.
func Recovered(logger Logger, category string, r any) {
	b := Or(logger).Err()
	if !b.Enabled() {
		return
	}
	if err, ok := r.(error); ok {
		b = b.Err(err)
	} else {
		b = b.Any(`panic`, r)
	}
	b.Str(`category`, category).
		Log(`recovered panic`)
}
