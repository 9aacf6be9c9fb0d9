package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-scheduler/internal/logging"
)

// defaultBacklogRates limits backlog warnings, per scheduler, unless
// overridden by WithBacklogWarningRate.
var defaultBacklogRates = map[time.Duration]int{
	10 * time.Second: 1,
	time.Minute:      3,
}

type schedulerOptions struct {
	logger           logging.Logger
	backlogRates     map[time.Duration]int
	backlogThreshold int
}

// Option configures a Scheduler instance.
type Option interface {
	applyScheduler(*schedulerOptions) error
}

type schedulerOptionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (s *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) error {
	return s.applySchedulerFunc(opts)
}

// WithLogger sets the logger used by the scheduler, in place of the one set
// by SetLogger.
func WithLogger(logger logging.Logger) Option {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithBacklogWarning enables a warning, logged when invoking leaves at least
// threshold tasks waiting to run. Zero disables the warning.
func WithBacklogWarning(threshold int) Option {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		if threshold < 0 {
			return errors.New(`scheduler: backlog threshold must not be negative`)
		}
		opts.backlogThreshold = threshold
		return nil
	}}
}

// WithBacklogWarningRate sets how often the backlog warning may be logged,
// as a map of sliding window durations to the maximum number of warnings in
// that window. See catrate.NewLimiter for the constraints on rates.
func WithBacklogWarningRate(rates map[time.Duration]int) Option {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		if _, err := newBacklogLimiter(rates); err != nil {
			return err
		}
		opts.backlogRates = rates
		return nil
	}}
}

func resolveSchedulerOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		backlogRates: defaultBacklogRates,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newBacklogLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf(`scheduler: invalid backlog warning rates: %v`, r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}
