package logging

import "github.com/arloliu/dkmeans/types"

// NopLogger drops every record. It is the Runner's logger when none is given.
type NopLogger struct{}

var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that drops every record.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (*NopLogger) Debug(string, ...any) {}

func (*NopLogger) Info(string, ...any) {}

func (*NopLogger) Warn(string, ...any) {}

func (*NopLogger) Error(string, ...any) {}

// Fatal drops the record; it never exits.
func (*NopLogger) Fatal(string, ...any) {}
