package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"
)

var logger *slog.Logger

func init() {
	handler := &simpleHandler{output: os.Stderr}
	logger = slog.New(handler)
}

// simpleHandler implements slog.Handler with plain colored single-line output.
type simpleHandler struct {
	output io.Writer
}

// Enabled always reports true; verbosity is gated by the DBRANCH_DEBUG
// check in Debug() itself rather than here, so Info/Warning/Error are
// never suppressed by --debug being unset.
func (h *simpleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *simpleHandler) Handle(ctx context.Context, record slog.Record) error {
	var prefix string
	var colorFunc func(string) string

	switch record.Level {
	case slog.LevelDebug:
		prefix = "DEBUG:"
		colorFunc = Aqua
	case slog.LevelInfo:
		prefix = "INFO:"
		colorFunc = Blue
	case slog.LevelWarn:
		prefix = "WARNING:"
		colorFunc = Yellow
	case slog.LevelError:
		prefix = "ERROR:"
		colorFunc = Red
	default:
		prefix = "LOG:"
		colorFunc = func(s string) string { return s }
	}

	fmt.Fprintf(h.output, "%s %s\n", colorFunc(prefix), record.Message)
	return nil
}

func (h *simpleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *simpleHandler) WithGroup(name string) slog.Handler {
	return h
}

func GetDebugLogger() io.Writer {
	if viper.GetBool("DEBUG") {
		return os.Stderr
	}
	return io.Discard
}

// Log prints a plain message with no formatting, colors, or prefixes over stdout.
func Log(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

// Info prints an info-level message.
func Info(format string, args ...interface{}) {
	logger.Info(fmt.Sprintf(format, args...))
}

// Debug prints a debug message when DBRANCH_DEBUG=true.
func Debug(format string, args ...interface{}) {
	if viper.GetBool("DEBUG") {
		logger.Debug(fmt.Sprintf(format, args...))
	}
}

// Warning prints a warning message.
func Warning(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func Error(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}

func GetLogger() *slog.Logger {
	return logger
}
