package dispatch

import (
	"github.com/joeycumines/go-scheduler/internal/logging"
)

type queueOptions struct {
	logger logging.Logger
}

// Option configures a Queue instance.
type Option interface {
	applyQueue(*queueOptions)
}

type queueOptionImpl struct {
	applyQueueFunc func(*queueOptions)
}

func (q *queueOptionImpl) applyQueue(opts *queueOptions) {
	q.applyQueueFunc(opts)
}

// WithLogger sets the logger used for the queue's dropped tasks and
// recovered panics, in place of the process-wide logger.
func WithLogger(logger logging.Logger) Option {
	return &queueOptionImpl{func(opts *queueOptions) {
		opts.logger = logger
	}}
}

func resolveQueueOptions(opts []Option) *queueOptions {
	cfg := &queueOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyQueue(cfg)
		}
	}
	return cfg
}
