package logger

import (
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/sha3"
)

// New initializes a new slog.Logger writing to stdout.
// Log level can be debug, info, warn, error. Format is "json" (default) or "text".
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Fingerprint returns a short sha3 digest of a secret (token, refresh token)
// so it can be correlated in logs without being written out.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha3.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}
