// internal/logging/logger.go

// Package logging provides the leveled logger used by the agent and the
// collector.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is what components log through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
}

// DefaultLogger writes text records through slog.
type DefaultLogger struct {
	logger *slog.Logger
	prefix string
}

// New returns a logger writing to w at the given minimum level. Every
// message is prefixed with "[component] ".
func New(w io.Writer, level slog.Level, component string) *DefaultLogger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	return &DefaultLogger{logger: logger, prefix: "[" + component + "] "}
}

// NewStderr is New on os.Stderr.
func NewStderr(level slog.Level, component string) *DefaultLogger {
	return New(os.Stderr, level, component)
}

// Discard returns a logger that drops everything.
func Discard() *DefaultLogger {
	return New(io.Discard, slog.LevelError, "")
}

func (d *DefaultLogger) Debug(msg string, args ...any) {
	d.logger.Debug(d.prefix+msg, args...)
}

func (d *DefaultLogger) Info(msg string, args ...any) {
	d.logger.Info(d.prefix+msg, args...)
}

func (d *DefaultLogger) Warn(msg string, args ...any) {
	d.logger.Warn(d.prefix+msg, args...)
}

func (d *DefaultLogger) Error(msg string, args ...any) {
	d.logger.Error(d.prefix+msg, args...)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	d.logger.InfoContext(ctx, d.prefix+msg, args...)
}

// With returns a logger that adds args to every record.
func (d *DefaultLogger) With(args ...any) Logger {
	return &DefaultLogger{logger: d.logger.With(args...), prefix: d.prefix}
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
