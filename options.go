package dkmeans

// Option configures a Runner with optional dependencies.
type Option func(*runnerOptions)

// runnerOptions holds optional Runner configuration.
type runnerOptions struct {
	hooks   *Hooks
	metrics MetricsCollector
	logger  Logger
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewRunner and RunLocal
//
// Example:
//
//	hooks := &dkmeans.Hooks{
//	    OnIterationComplete: func(ctx context.Context, iter int, centroids *mat.Dense) error {
//	        return plot(iter, centroids)
//	    },
//	}
//	runner, err := dkmeans.NewRunner(&cfg, comm, src, dkmeans.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *runnerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// The Runner also wraps its communicator so collective latency is recorded.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewRunner and RunLocal
//
// Example:
//
//	metrics := metrics.NewPrometheus(prometheus.DefaultRegisterer, "dkmeans")
//	runner, err := dkmeans.NewRunner(&cfg, comm, src, dkmeans.WithMetrics(metrics))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *runnerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewRunner and RunLocal
//
// Example:
//
//	logger := logging.NewSlog(slog.Default())
//	runner, err := dkmeans.NewRunner(&cfg, comm, src, dkmeans.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *runnerOptions) {
		o.logger = logger
	}
}
