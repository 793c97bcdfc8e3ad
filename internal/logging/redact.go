package logging

import (
	"io"
	"log/slog"
	"strings"
)

// sensitiveKeys are attribute names whose values never reach the output,
// whatever the caller passes.
var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"code",
	"hash",
	"authorization",
}

const redacted = "[REDACTED]"

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	if strings.HasSuffix(k, "_id") || k == "status_code" || k == "hotel_code" {
		return false
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RedactAttr is a slog ReplaceAttr hook masking credentials.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindGroup && isSensitive(a.Key) {
		return slog.String(a.Key, redacted)
	}
	return a
}

// New builds the JSON logger used by the binaries.
func New(w io.Writer, level slog.Level) *SlogLogger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: RedactAttr,
	})
	return NewSlogLogger(slog.New(h))
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
