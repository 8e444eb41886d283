package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config configures the process logger.
type Config struct {
	Level          string // debug, info, warn, error
	Format         string // json, text
	AddSource      bool
	RedactPII      bool
	RedactPatterns []Pattern
	Writer         io.Writer // defaults to os.Stderr
}

// New builds a logger. Request-scoped fields stored with WithRequestID,
// WithActor and WithCorrelationID are added to records logged with a
// context; with RedactPII, values are scrubbed before they are written.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	if cfg.RedactPII {
		r, err := NewRedactor(cfg.RedactPatterns)
		if err != nil {
			return nil, err
		}
		handler = NewRedactHandler(handler, r)
	}
	return slog.New(&contextHandler{next: handler}), nil
}

// Setup builds a logger and installs it as the slog default.
func Setup(cfg Config) (*slog.Logger, error) {
	logger, err := New(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel parses a level name. The empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
