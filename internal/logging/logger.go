// Package logging writes the console's diagnostic log. The terminal belongs to
// the TUI, so everything goes to .espace/logs/espace.log as JSON lines.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap logger with the Printf helper the rest of the code uses for
// free-form diagnostics. A nil *Logger discards everything.
type Logger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
	file  *os.File
}

// New opens (or appends to) the log file at path.
func New(path, level string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	encoder := zap.NewProductionEncoderConfig()
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoder), zapcore.AddSync(f), zap.NewAtomicLevelAt(lvl))
	l := Wrap(zap.New(core, zap.ErrorOutput(zapcore.AddSync(f))))
	l.file = f
	return l, nil
}

// Wrap adapts an existing zap logger.
func Wrap(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{base: base, sugar: base.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return Wrap(zap.NewNop())
}

// Zap exposes the underlying logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.base
}

// Named returns a child logger tagged with name.
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}
	return Wrap(l.base.Named(name))
}

// Printf writes a single informational line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.sugar.Infof(strings.TrimRight(format, "\n"), args...)
}

// Debugw logs a debug message with key/value pairs.
func (l *Logger) Debugw(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Debugw(msg, keysAndValues...)
}

// Infow logs an informational message with key/value pairs.
func (l *Logger) Infow(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Infow(msg, keysAndValues...)
}

// Warnw logs a warning with key/value pairs.
func (l *Logger) Warnw(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Warnw(msg, keysAndValues...)
}

// Errorw logs an error with key/value pairs.
func (l *Logger) Errorw(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Errorw(msg, keysAndValues...)
}

// Close flushes buffered entries and releases the file handle.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.base.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
