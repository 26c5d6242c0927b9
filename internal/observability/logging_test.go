package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogContextAccumulates(t *testing.T) {
	ctx := WithPassID(context.Background(), "pass-1")
	ctx = WithPhase(ctx, "evaluate")
	ctx = WithSource(ctx, "a.md")
	ctx = WithPlatform(ctx, "sage")

	assert.Equal(t, LogContext{PassID: "pass-1", Source: "a.md", Phase: "evaluate", Platform: "sage"}, GetContext(ctx))
	assert.Equal(t, LogContext{}, GetContext(context.Background()))
}

func TestContextLoggingIncludesAttrs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(NewLogger(&buf, slog.LevelDebug, "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := WithSource(WithPassID(context.Background(), "p-9"), "b.md")
	WarnContext(ctx, "group failed", slog.Int("attempt", 2))
	DebugContext(ctx, "debug line")

	out := buf.String()
	assert.Contains(t, out, "pass_id=p-9")
	assert.Contains(t, out, "source=b.md")
	assert.Contains(t, out, "attempt=2")
	assert.Contains(t, out, "debug line")
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "JSON").Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
