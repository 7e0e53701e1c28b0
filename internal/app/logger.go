// v0
// internal/app/logger.go
package app

import (
	"context"
	"io"
	"log/slog"
)

// NewLogger returns a text logger writing every record to all of outputs.
func NewLogger(level slog.Leveler, outputs ...io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	hs := make([]slog.Handler, 0, len(outputs))
	for _, w := range outputs {
		if w != nil {
			hs = append(hs, slog.NewTextHandler(w, opts))
		}
	}
	return slog.New(teeHandler(hs))
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = fn(h)
	}
	return next
}
