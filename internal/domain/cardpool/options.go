package cardpool

import "cardvault/pkg/logger"

// Option configures pool components.
type Option func(*options)

type options struct {
	log     *logger.Logger
	metrics *Metrics
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.NewNop()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	return o
}
