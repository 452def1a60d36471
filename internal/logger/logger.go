// Package logger configures slog for the server: pretty text in development, JSON in production.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	formatJSON   = "json"
	formatPretty = "pretty"
)

// Logger embeds *slog.Logger and adds WithError and Fatal.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Writer      io.Writer
	Format      string // "json" or "pretty"; derived from Environment when empty
	Environment string
	Level       slog.Level
	AddSource   bool
	// NoColor disables ANSI colors in pretty output. It is also set when the
	// NO_COLOR environment variable is present.
	NoColor bool
}

// New builds a Logger writing to cfg.Writer (stdout when nil). Production
// defaults to JSON and everything else to the pretty handler.
func New(cfg Config) *Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: baseSourceFile,
	}

	switch cfg.format() {
	case formatJSON:
		return &Logger{Logger: slog.New(slog.NewJSONHandler(w, opts))}
	default:
		_, noColor := os.LookupEnv("NO_COLOR")
		color := !cfg.NoColor && !noColor
		return &Logger{Logger: slog.New(NewPrettyHandler(w, opts, color))}
	}
}

func (cfg Config) format() string {
	switch {
	case cfg.Format != "":
		return cfg.Format
	case cfg.Environment == "production":
		return formatJSON
	default:
		return formatPretty
	}
}

// baseSourceFile trims source paths to the file name.
func baseSourceFile(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	if src, ok := a.Value.Any().(*slog.Source); ok {
		src.File = filepath.Base(src.File)
	}
	return a
}

// ParseLevel converts a string to slog.Level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithError adds an error attribute to the logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With(slog.String("error", err.Error()))}
}

// Fatal logs a fatal error and exits.
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
