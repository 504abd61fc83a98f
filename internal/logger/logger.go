// Package logger configures slog for the ideator agent and CLI. Records are
// JSON, one per line, and carry the service name so agent and CLI output can
// share a sink.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joelkehle/ideator/internal/config"
)

// New logs to stdout.
func New(cfg config.Logging) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter logs to w at cfg.Level. Unknown levels fall back to info.
func NewWithWriter(w io.Writer, cfg config.Logging) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(handler).With("service", cfg.Service)
}

func parseLevel(s string) slog.Level {
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
