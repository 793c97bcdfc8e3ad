package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_EachLevelWritesOneLine(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "limiter checked", "attempts", 1)
	log.Info(ctx, "login succeeded", "session_id", 2)
	log.Warn(ctx, "gateway call failed", "path", "/login")
	log.Error(ctx, "rotate failed", "user_id", 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	want := []string{
		`level=DEBUG msg="limiter checked" attempts=1`,
		`level=INFO msg="login succeeded" session_id=2`,
		`level=WARN msg="gateway call failed" path=/login`,
		`level=ERROR msg="rotate failed" user_id=4`,
	}
	for i, w := range want {
		assert.Contains(t, lines[i], w)
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)

	log.With("module", "auth_service").Info(context.Background(), "logout", "session_id", 9)

	out := buf.String()
	assert.Contains(t, out, "module=auth_service")
	assert.Contains(t, out, "session_id=9")
}

func TestSlogLogger_ContextAttributes(t *testing.T) {
	log, buf := newTestLogger(t)

	ctx := ContextWith(context.Background(), "user_id", 7)
	ctx = ContextWith(ctx, "session_id", 11)
	log.With("module", "test").Warn(ctx, "scoped", "k", "v")

	out := buf.String()
	for _, s := range []string{"module=test", "user_id=7", "session_id=11", "k=v"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
	if strings.Index(out, "user_id=7") > strings.Index(out, "k=v") {
		t.Fatalf("scoped attributes should precede call attributes:\n%s", out)
	}
}

func TestContextWith_DoesNotLeakIntoParent(t *testing.T) {
	parent := ContextWith(context.Background(), "a", 1)
	_ = ContextWith(parent, "b", 2)

	if got := fromContext(parent); len(got) != 2 {
		t.Fatalf("parent context changed: %v", got)
	}
}

func TestSlogLogger_ContextDoesNotPanic(t *testing.T) {
	log, _ := newTestLogger(t)

	ctx := context.TODO()
	log.Info(ctx, "ctx-ok")
	log.Debug(ctx, "ctx-ok")
	log.Warn(ctx, "ctx-ok")
	log.Error(ctx, "ctx-ok")
}
