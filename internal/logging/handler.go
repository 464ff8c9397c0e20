package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"
)

// Entry is a log record mirrored to an EntryCallback.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	// Group is the dot-separated slog group the record was logged under.
	Group string
}

// EntryCallback receives records at or above a TeeHandler's threshold.
// It runs on the logging goroutine and must not block.
type EntryCallback func(Entry)

// TeeHandler forwards every record to a base handler and mirrors records at
// or above minLevel to a callback. Only the callback is gated by minLevel.
type TeeHandler struct {
	base     slog.Handler
	callback EntryCallback
	minLevel slog.Level
	group    string
}

// NewTeeHandler wraps base. A nil callback makes the handler a plain
// pass-through.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, callback EntryCallback) *TeeHandler {
	return &TeeHandler{
		base:     base,
		callback: callback,
		minLevel: minLevel,
	}
}

// Enabled defers to the base handler.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle writes the record to the base handler, then mirrors it. The callback
// runs even when the base handler fails.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.callback != nil && record.Level >= h.minLevel {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// stderr, not slog: logging here would re-enter this handler.
					fmt.Fprintf(os.Stderr, "[logging] entry callback panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.callback(Entry{
				Time:    record.Time,
				Level:   record.Level,
				Message: record.Message,
				Group:   h.group,
			})
		}()
	}
	return err
}

// WithAttrs applies attrs to the base handler and keeps the callback.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &TeeHandler{
		base:     h.base.WithAttrs(attrs),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    h.group,
	}
}

// WithGroup nests the base handler under name.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &TeeHandler{
		base:     h.base.WithGroup(name),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    group,
	}
}
