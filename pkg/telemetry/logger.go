// Package telemetry builds the logger and the Prometheus metrics for a
// slicing run.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig selects where and how log lines are written.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error. Empty means info.
	Level string
	// Format is "console" for human-readable output, anything else for JSON.
	Format string
	// Output is stdout, stderr or a file path. Empty means stderr.
	Output string
	// EnableCaller adds the source location to each line.
	EnableCaller bool
}

// NewLogger creates a zerolog logger for cfg. The closer releases the log
// file when Output names one; closing it is a no-op for stdout and stderr.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("telemetry: open log output: %w", err)
		}
		w, closer = f, f
	}
	l, err := newLogger(w, cfg)
	if err != nil {
		closer.Close()
		return zerolog.Nop(), nopCloser{}, err
	}
	return l, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newLogger(w io.Writer, cfg LoggingConfig) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	if cfg.EnableCaller {
		l = l.With().Caller().Logger()
	}
	return l, nil
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch level {
	case "":
		return zerolog.InfoLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("telemetry: unknown log level %q", level)
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
