package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface used across promptchain.
// Arguments are alternating key/value pairs as accepted by log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// With returns an adapter that attaches args to every entry.
func (s *SlogAdapter) With(args ...any) *SlogAdapter {
	return &SlogAdapter{Logger: s.Logger.With(args...)}
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a slog backed Logger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	// Component is attached as the "component" attribute when non-empty.
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// NewLogger builds a slog backed Logger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *SlogAdapter {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With(slog.String("component", cfg.Component))
	}
	return NewSlogAdapter(logger)
}

// NewSlogLogger creates a Logger with the given level and format ("json" or "text").
func NewSlogLogger(level LogLevel, format string, addSource bool) *SlogAdapter {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogToolCall records the outcome of a tool dispatch.
func LogToolCall(l Logger, tool, callID, outcome string, dur time.Duration) {
	if outcome == "ok" {
		l.Info("tool.call.complete", "tool", tool, "call_id", callID, "duration_ms", dur.Milliseconds())
		return
	}
	l.Warn("tool.call.failed", "tool", tool, "call_id", callID, "outcome", outcome, "duration_ms", dur.Milliseconds())
}

// LogStage records a completed chain stage.
func LogStage(l Logger, index int, name string, emitted int, dur time.Duration, err error) {
	if err != nil {
		l.Error("chain.stage.failed", "index", index, "stage", name, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	l.Debug("chain.stage.complete", "index", index, "stage", name, "emitted", emitted, "duration_ms", dur.Milliseconds())
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// contextKey scopes loggers stored in a context.Context.
type contextKey struct{}

// WithLogger returns a copy of ctx carrying l.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback when none is set.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok && l != nil {
		return l
	}
	return fallback
}
