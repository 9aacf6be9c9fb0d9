package scheduler

import (
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-scheduler/internal/logging"
)

type backlogCategory struct{}

// backlog logs a rate limited warning when too many tasks are pending.
type backlog struct {
	logger    logging.Logger
	limiter   *catrate.Limiter
	kind      string
	threshold int
}

func newBacklog(cfg *schedulerOptions, kind string) (*backlog, error) {
	b := &backlog{
		logger:    cfg.logger,
		kind:      kind,
		threshold: cfg.backlogThreshold,
	}
	if b.threshold > 0 {
		limiter, err := newBacklogLimiter(cfg.backlogRates)
		if err != nil {
			return nil, err
		}
		b.limiter = limiter
	}
	return b, nil
}

// check is called with the number of pending tasks, after each invoke.
func (b *backlog) check(pending int) {
	if b.threshold <= 0 || pending < b.threshold {
		return
	}
	if _, ok := b.limiter.Allow(backlogCategory{}); !ok {
		return
	}
	logging.Or(b.logger).Warning().
		Str(`scheduler`, b.kind).
		Int(`pending`, pending).
		Int(`threshold`, b.threshold).
		Log(`scheduler: task backlog, is the owning loop still running?`)
}
