// Package observability carries pass-scoped logging context and tracing spans.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/sagecache/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	PassID   string
	Source   string
	Phase    string
	Platform string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithPassID adds an evaluation pass ID to the context.
func WithPassID(ctx context.Context, passID string) context.Context {
	lc := extractLogContext(ctx)
	lc.PassID = passID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithSource adds the source being processed to the context.
func WithSource(ctx context.Context, source string) context.Context {
	lc := extractLogContext(ctx)
	lc.Source = source
	return context.WithValue(ctx, logContextKey, lc)
}

// WithPhase adds a phase name (discover, evaluate, render) to the context.
func WithPhase(ctx context.Context, phase string) context.Context {
	lc := extractLogContext(ctx)
	lc.Phase = phase
	return context.WithValue(ctx, logContextKey, lc)
}

// WithPlatform adds the execution platform to the context.
func WithPlatform(ctx context.Context, platform string) context.Context {
	lc := extractLogContext(ctx)
	lc.Platform = platform
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}
	if lc.PassID != "" {
		attrs = append(attrs, logfields.PassID(lc.PassID))
	}
	if lc.Phase != "" {
		attrs = append(attrs, logfields.Phase(lc.Phase))
	}
	if lc.Source != "" {
		attrs = append(attrs, logfields.Source(lc.Source))
	}
	if lc.Platform != "" {
		attrs = append(attrs, logfields.Platform(lc.Platform))
	}
	return attrs
}

func logContext(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	all := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, level, msg, all...)
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logContext(ctx, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logContext(ctx, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logContext(ctx, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logContext(ctx, slog.LevelDebug, msg, attrs)
}

// ParseLevel maps a level name onto slog levels. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// NewLogger builds a text or JSON logger writing to w.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
