// Package logging provides the structured logger used throughout the asset client.
//
// It wraps log/slog so that components can attach container and asset context
// once and log with a context.Context at every call site. A nil or nop logger
// discards everything, which is the default for a Client.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level represents a logging level.
type Level int

// Supported logging levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// slogLevel maps a Level onto the slog equivalent.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config holds configuration for a Logger.
type Config struct {
	// Level sets the minimum level that is emitted.
	Level Level
	// AddSource includes file and line number in log records.
	AddSource bool
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
	// Output is where records are written. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger provides structured, context-aware logging.
// The zero value and a nil *Logger both discard all messages.
type Logger struct {
	slog *slog.Logger
}

// New creates a Logger from the given configuration.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{slog: slog.New(handler)}
}

// FromSlog wraps an existing slog.Logger.
func FromSlog(l *slog.Logger) *Logger {
	return &Logger{slog: l}
}

// NewNop returns a logger that discards all messages.
func NewNop() *Logger {
	return &Logger{}
}

// Enabled reports whether the logger would emit a record at the given level.
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	if l == nil || l.slog == nil {
		return false
	}
	return l.slog.Enabled(ctx, level.slogLevel())
}

// Debug logs a debug-level message.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.DebugContext(ctx, msg, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.InfoContext(ctx, msg, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.WarnContext(ctx, msg, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.ErrorContext(ctx, msg, args...)
}

// With returns a logger with additional context fields.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.slog == nil {
		return l
	}
	return &Logger{slog: l.slog.With(args...)}
}

// WithOperation returns a logger with operation context.
func (l *Logger) WithOperation(operation string) *Logger {
	return l.With("operation", operation)
}

// WithContainer returns a logger with container context.
func (l *Logger) WithContainer(containerID string) *Logger {
	return l.With("container_id", containerID)
}

// WithAsset returns a logger with container and asset context.
func (l *Logger) WithAsset(containerID, assetID string) *Logger {
	return l.With("container_id", containerID, "asset_id", assetID)
}

// WithRequest returns a logger tagged with a request token.
func (l *Logger) WithRequest(requestID string) *Logger {
	return l.With("request_id", requestID)
}

// Operation names used in log records.
const (
	OpGetAsset       = "get_asset"
	OpReset          = "reset"
	OpFetchContainer = "fetch_container"
	OpFetchImage     = "fetch_image"
	OpDecode         = "decode"
)

// LogFetch logs the outcome of a network fetch with its duration.
func LogFetch(ctx context.Context, logger *Logger, operation string, duration time.Duration, size int, err error) {
	if logger == nil {
		return
	}

	fields := []any{
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
	}
	if size > 0 {
		fields = append(fields, "size", size)
	}

	if err != nil {
		fields = append(fields, "error", err.Error())
		logger.Warn(ctx, "fetch failed", fields...)
		return
	}
	logger.Info(ctx, "fetch completed", fields...)
}

// LogCacheHit logs a cache hit.
func LogCacheHit(ctx context.Context, logger *Logger, containerID, assetID string) {
	if logger == nil {
		return
	}
	logger.Debug(ctx, "cache hit",
		"container_id", containerID,
		"asset_id", assetID,
		"result", "hit")
}

// LogCacheMiss logs a cache miss and the reason it missed.
func LogCacheMiss(ctx context.Context, logger *Logger, containerID, assetID, reason string) {
	if logger == nil {
		return
	}
	logger.Debug(ctx, "cache miss",
		"container_id", containerID,
		"asset_id", assetID,
		"reason", reason,
		"result", "miss")
}

// ParseLevel parses a string log level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
