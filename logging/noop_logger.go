package logging

import (
	"context"

	"github.com/vienkmt/commscore/common"
)

// NoopLogger discards everything. Used by tests that don't want log noise.
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Trace(ctx context.Context, format string, args ...interface{}) {}
func (l *NoopLogger) Debug(ctx context.Context, format string, args ...interface{}) {}
func (l *NoopLogger) Info(ctx context.Context, format string, args ...interface{})  {}
func (l *NoopLogger) Warn(ctx context.Context, format string, args ...interface{})  {}
func (l *NoopLogger) Error(ctx context.Context, format string, args ...interface{}) {}

func (l *NoopLogger) WithFields(fields map[string]interface{}) common.LoggerInterface { return l }
func (l *NoopLogger) GetLevel() common.LogLevel                                       { return common.LevelNone }
func (l *NoopLogger) SetLevel(level common.LogLevel)                                  {}

var _ common.LoggerInterface = (*NoopLogger)(nil)
