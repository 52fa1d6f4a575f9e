// Package log configures the process-wide slog default used by every binary.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler on stderr at the given level. Unknown levels
// fall back to info.
func Setup(logLevel string) {
	level := slog.LevelInfo

	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// WithModule returns the default logger tagged with the owning module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
