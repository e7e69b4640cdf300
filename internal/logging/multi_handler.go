package logging

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler fans one diagnostic record out to every configured sink.
// Ground Control uses it to pair the stderr handler with the journald
// handler when the supervisor runs under systemd; with a single sink
// createHandler skips the fan-out entirely.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler that writes to all provided
// handlers. Nil entries are dropped so callers can pass optional sinks
// unconditionally.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	sinks := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			sinks = append(sinks, h)
		}
	}
	return &MultiHandler{handlers: sinks}
}

// Enabled reports whether any sink accepts records at this level.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled sink. A failing sink
// (journald disappearing mid-run) does not stop delivery to the
// others; the combined error is returned.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sinks := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		sinks[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: sinks}
}

// WithGroup implements slog.Handler.
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	sinks := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		sinks[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: sinks}
}
