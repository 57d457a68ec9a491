// Package logging provides the default common.LoggerInterface implementation
// used by every engine when no logger option is supplied.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vienkmt/commscore/common"
)

// Logger is a minimal structured logger: level-gated, field-carrying,
// writes one line per entry to an io.Writer.
type Logger struct {
	mu     sync.Mutex
	level  common.LogLevel
	writer io.Writer
	fields map[string]interface{}
}

// Option configures a Logger.
type Option func(*Logger)

// WithLevel sets the minimum level that is emitted.
func WithLevel(level common.LogLevel) Option {
	return func(l *Logger) { l.level = level }
}

// WithWriter sets the destination writer.
func WithWriter(writer io.Writer) Option {
	return func(l *Logger) { l.writer = writer }
}

// WithFields merges fields into every entry this logger emits.
func WithFields(fields map[string]interface{}) Option {
	return func(l *Logger) {
		if l.fields == nil {
			l.fields = make(map[string]interface{}, len(fields))
		}
		for k, v := range fields {
			l.fields[k] = v
		}
	}
}

// NewLogger creates a Logger writing to stdout at Info level unless
// overridden by options.
func NewLogger(options ...Option) *Logger {
	l := &Logger{
		level:  common.LevelInfo,
		writer: os.Stdout,
		fields: make(map[string]interface{}),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *Logger) Trace(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelTrace {
		l.log("TRACE", format, args...)
	}
}

func (l *Logger) Debug(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelDebug {
		l.log("DEBUG", format, args...)
	}
}

func (l *Logger) Info(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelInfo {
		l.log("INFO", format, args...)
	}
}

func (l *Logger) Warn(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelWarn {
		l.log("WARN", format, args...)
	}
}

func (l *Logger) Error(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelError {
		l.log("ERROR", format, args...)
	}
}

// WithFields returns a new Logger carrying the union of existing and new
// fields; it does not mutate the receiver.
func (l *Logger) WithFields(fields map[string]interface{}) common.LoggerInterface {
	l.mu.Lock()
	existing := l.fields
	level := l.level
	writer := l.writer
	l.mu.Unlock()

	return NewLogger(
		WithLevel(level),
		WithWriter(writer),
		WithFields(existing),
		WithFields(fields),
	)
}

func (l *Logger) GetLevel() common.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) SetLevel(level common.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Hexdump logs a 16-bytes-per-line hexdump at TRACE level. Implements
// common.LoggerInterfaceHexdump; transports type-assert for it before
// calling, so the hot path costs nothing when it's absent or the level
// gate is closed.
func (l *Logger) Hexdump(ctx context.Context, data []byte) {
	if l.GetLevel() > common.LevelTrace {
		return
	}

	var b strings.Builder
	b.WriteString("hexdump:\n")
	for i := 0; i < len(data); i += 16 {
		fmt.Fprintf(&b, "%08x ", i)
		for j := 0; j < 16; j++ {
			if j == 8 {
				b.WriteString("| ")
			}
			if i+j < len(data) {
				fmt.Fprintf(&b, "%02x ", data[i+j])
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteByte('\n')
	}
	l.log("TRACE", "%s", b.String())
}

func (l *Logger) log(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	message := fmt.Sprintf(format, args...)
	entry := fmt.Sprintf("[%s] %s: %s", time.Now().Format(time.RFC3339), level, message)

	if len(l.fields) > 0 {
		parts := make([]string, 0, len(l.fields))
		for k, v := range l.fields {
			parts = append(parts, fmt.Sprintf("%s=%q", k, fmt.Sprintf("%v", v)))
		}
		entry += " " + strings.Join(parts, " ")
	}
	if !strings.HasSuffix(entry, "\n") {
		entry += "\n"
	}

	if _, err := fmt.Fprint(l.writer, entry); err != nil && l.writer != os.Stderr {
		fmt.Fprintf(os.Stderr, "logging: write failed: %v\n", err)
	}
}

var _ common.LoggerInterface = (*Logger)(nil)
var _ common.LoggerInterfaceHexdump = (*Logger)(nil)
