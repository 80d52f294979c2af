package types

// Logger is the structured logger used by every component.
//
// Arguments after msg are alternating key/value pairs, so a zap.SugaredLogger
// or the slog adapter in internal/logging fit without glue code. Workers log
// their rank as a field rather than in the message.
type Logger interface {
	// Debug records per-iteration and per-collective detail.
	Debug(msg string, keysAndValues ...any)

	// Info records run milestones: startup banner, seed, completion.
	Info(msg string, keysAndValues ...any)

	// Warn records risky configuration and hook failures.
	Warn(msg string, keysAndValues ...any)

	// Error records the failure that ends a run.
	Error(msg string, keysAndValues ...any)

	// Fatal records an unrecoverable failure. Implementations may exit the process.
	Fatal(msg string, keysAndValues ...any)
}
