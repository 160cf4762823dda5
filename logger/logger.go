// Package logger provides the structured logging interface used across the
// RCON engine, backed by zerolog.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field is one structured key/value attached to a log entry. Error values
// are rendered with their Error method.
type Field struct {
	Key   string
	Value any
}

// Logger writes leveled, structured log entries. Components receive a Logger
// as a dependency and derive scoped children with With, e.g. per server id.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child Logger that adds fields to every entry. The
	// receiver is not modified.
	With(fields ...Field) Logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger builds a Logger writing JSON lines to w, adding a service
// name and timestamp to all entries and filtering by level.
//
// Parameters:
//   - w: Destination of log lines (os.Stdout when nil)
//   - serviceName: Stamped on each entry under the "service" key
//   - level: Entries below this level are dropped
//
// Returns:
//   - A Logger that writes through zerolog
func NewZerologLogger(w io.Writer, serviceName string, level zerolog.Level) Logger {
	if w == nil {
		w = os.Stdout
	}

	return &zerologLogger{
		logger: zerolog.New(w).With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewNopLogger returns a Logger that discards everything. Components fall
// back to it when constructed without a logger.
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// ParseLevel converts a textual level ("debug", "info", ...) into a zerolog level.
//
// Parameters:
//   - level: The level name; empty means info
//
// Returns:
//   - The zerolog level
//   - An error if the name is unknown
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}

	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return l, nil
}

func (z *zerologLogger) Debug(msg string, fields ...Field) { emit(z.logger.Debug(), msg, fields) }
func (z *zerologLogger) Info(msg string, fields ...Field)  { emit(z.logger.Info(), msg, fields) }
func (z *zerologLogger) Warn(msg string, fields ...Field)  { emit(z.logger.Warn(), msg, fields) }
func (z *zerologLogger) Error(msg string, fields ...Field) { emit(z.logger.Error(), msg, fields) }

func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{logger: z.logger.With().Fields(toMap(fields)).Logger()}
}

// emit writes one entry; ev is nil when the level is disabled.
func emit(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}

	ev.Fields(toMap(fields)).Msg(msg)
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out[f.Key] = v.Error()
		default:
			out[f.Key] = v
		}
	}

	return out
}
