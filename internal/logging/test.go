package logging

import (
	"fmt"
	"strings"
	"testing"

	"github.com/arloliu/dkmeans/types"
)

// TestLogger implements types.Logger on top of testing.TB.
//
// Records are prefixed so interleaved output from several in-process workers
// stays readable, e.g. "[rank 2] INFO: iteration complete iter=3".
type TestLogger struct {
	tb     testing.TB
	prefix string
}

// Compile-time assertion that TestLogger implements Logger.
var _ types.Logger = (*TestLogger)(nil)

// NewTest creates a test logger with an optional prefix.
func NewTest(tb testing.TB, prefix string) *TestLogger {
	return &TestLogger{tb: tb, prefix: prefix}
}

// Debug logs a debug-level message.
func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.log("DEBUG", msg, keysAndValues)
}

// Info logs an info-level message.
func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.log("INFO", msg, keysAndValues)
}

// Warn logs a warning-level message.
func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.log("WARN", msg, keysAndValues)
}

// Error logs an error-level message.
func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.log("ERROR", msg, keysAndValues)
}

// Fatal logs the message and fails the test.
func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.tb.Helper()
	l.tb.Fatalf("%sFATAL: %s %s", l.head(), msg, formatKeyValues(keysAndValues))
}

func (l *TestLogger) log(level, msg string, keysAndValues []any) {
	l.tb.Helper()
	l.tb.Logf("%s%s: %s %s", l.head(), level, msg, formatKeyValues(keysAndValues))
}

func (l *TestLogger) head() string {
	if l.prefix == "" {
		return ""
	}

	return "[" + l.prefix + "] "
}

// formatKeyValues formats key-value pairs as "k=v" tokens.
func formatKeyValues(keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return ""
	}

	var sb strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&sb, "%v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&sb, "%v=<missing>", keysAndValues[i])
		}
	}

	return sb.String()
}
