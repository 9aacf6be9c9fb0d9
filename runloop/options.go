package runloop

import (
	"errors"
	"time"

	"github.com/joeycumines/go-scheduler/internal/logging"
)

const defaultMaxSleep = 10 * time.Second

type loopOptions struct {
	logger   logging.Logger
	name     string
	maxSleep time.Duration
}

// Option configures a Loop instance.
type Option interface {
	applyLoop(*loopOptions) error
}

type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithName sets the name the loop reports in log output.
func WithName(name string) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.name = name
		return nil
	}}
}

// WithMaxSleep caps how long a single blocking wait may last. The loop
// re-checks its sources at least this often, even without a wake-up.
func WithMaxSleep(d time.Duration) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if d <= 0 {
			return errors.New(`runloop: max sleep must be positive`)
		}
		opts.maxSleep = d
		return nil
	}}
}

// WithLogger sets the logger used by the loop, in place of the process-wide
// logger.
func WithLogger(logger logging.Logger) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

func resolveLoopOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		maxSleep: defaultMaxSleep,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
