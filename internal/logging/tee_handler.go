package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler duplicates every record to a set of handlers. Used to
// write both the console handler and the journal handler; each
// destination applies its own level gate.
type teeHandler struct {
	dests []slog.Handler
}

func newTeeHandler(dests ...slog.Handler) *teeHandler {
	return &teeHandler{dests: dests}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.dests {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.dests {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	dests := make([]slog.Handler, len(t.dests))
	for i, h := range t.dests {
		dests[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{dests: dests}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	dests := make([]slog.Handler, len(t.dests))
	for i, h := range t.dests {
		dests[i] = h.WithGroup(name)
	}
	return &teeHandler{dests: dests}
}
