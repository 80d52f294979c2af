package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/dkmeans/types"
)

func TestLoggers_ImplementInterface(t *testing.T) {
	t.Helper()
	var _ types.Logger = (*SlogLogger)(nil)
	var _ types.Logger = (*NopLogger)(nil)
	var _ types.Logger = (*TestLogger)(nil)
}

func TestNew_TextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(buf, "debug", "text")
	require.NoError(t, err)

	logger.Debug("assignment finished", "rank", 2, "points", 25)

	output := buf.String()
	assert.Contains(t, output, "assignment finished")
	assert.Contains(t, output, "rank=2")
	assert.Contains(t, output, "points=25")
	assert.Contains(t, output, "level=DEBUG")
}

func TestNew_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(buf, "info", "json")
	require.NoError(t, err)

	logger.Info("run complete", "iterations", 10)

	output := buf.String()
	assert.Contains(t, output, `"msg":"run complete"`)
	assert.Contains(t, output, `"iterations":10`)
}

func TestNew_RejectsUnknownSettings(t *testing.T) {
	_, err := New(nil, "verbose", "text")
	require.Error(t, err)

	_, err = New(nil, "info", "xml")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := NewSlog(slog.New(handler))

	logger.Debug("debug message")
	logger.Info("info message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")

	logger.Warn("warn message")
	logger.Error("error message")

	output = buf.String()
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestSlogLogger_With(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(buf, "info", "text")
	require.NoError(t, err)

	logger.With("rank", 3).Info("seeded")

	output := buf.String()
	assert.Contains(t, output, "seeded")
	assert.Contains(t, output, "rank=3")
}

func TestNopLogger_NoSideEffects(t *testing.T) {
	logger := NewNop()

	require.NotPanics(t, func() {
		logger.Debug("")
		logger.Info("", nil)
		logger.Warn("message")
		logger.Error("message", "single")
		logger.Fatal("message", "k1", "v1", "k2", "v2") // Should NOT exit
	})
}

func TestFormatKeyValues(t *testing.T) {
	require.Equal(t, "", formatKeyValues(nil))
	require.Equal(t, "a=1 b=x", formatKeyValues([]any{"a", 1, "b", "x"}))
	require.Equal(t, "a=1 dangling=<missing>", formatKeyValues([]any{"a", 1, "dangling"}))
}

func TestTestLogger_WritesThroughTB(t *testing.T) {
	logger := NewTest(t, "rank 0")

	require.NotPanics(t, func() {
		logger.Info("hello", "k", "v")
		logger.Warn("careful")
	})
}
