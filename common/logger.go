package common

import "context"

// LogLevel represents a logging level.
type LogLevel int

const (
	// LevelTrace is the most verbose logging level.
	LevelTrace LogLevel = iota
	// LevelDebug carries per-frame/per-event detail.
	LevelDebug
	// LevelInfo is for lifecycle information (connect, disconnect, start, stop).
	LevelInfo
	// LevelWarn is for recoverable anomalies.
	LevelWarn
	// LevelError is for failures.
	LevelError
	// LevelNone disables all logging.
	LevelNone
)

// LoggerInterface defines the logger every engine accepts via a functional
// option. Implementations must be safe for concurrent use: every engine in
// this module logs from its own goroutine.
type LoggerInterface interface {
	Trace(ctx context.Context, format string, args ...interface{})
	Debug(ctx context.Context, format string, args ...interface{})
	Info(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	// WithFields returns a new logger that prefixes future entries with fields.
	WithFields(fields map[string]interface{}) LoggerInterface
	GetLevel() LogLevel
	SetLevel(level LogLevel)
}

// LoggerInterfaceHexdump is an optional capability: loggers that implement it
// get raw frame dumps at trace level from the transport layers.
type LoggerInterfaceHexdump interface {
	Hexdump(ctx context.Context, data []byte)
}
