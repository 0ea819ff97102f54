// Package logging configures structured logging for gradebench components.
//
// Output goes to stderr so evaluation artifacts on stdout and on disk stay
// machine-clean. Every logger carries a "component" attribute for filtering
// aggregated batch logs.
package logging

import (
	"io"
	"log/slog"
	"os"
)

type Config struct {
	// Level is the minimum level emitted. Default: info.
	Level slog.Level
	// JSON switches stderr output to JSON lines for machine collection.
	JSON bool
	// Component is attached to every record (e.g. "engine", "batch").
	Component string
}

func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return slog.New(h)
}

// Nop returns a logger that discards everything; used as the default when a
// caller does not supply one.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
}
