package scheduler

import (
	"github.com/joeycumines/go-scheduler/internal/logging"
	"github.com/joeycumines/logiface"
)

// SetLogger sets the logger used by every scheduler, loop and queue that was
// not configured with its own. A nil logger disables logging.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	logging.Set(logger)
}
