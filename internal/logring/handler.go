package logring

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
)

// TeeHandler wraps a base [slog.Handler] and copies records at or above
// minLevel into a Ring. All records are forwarded to the base handler
// regardless of level; only the capture is gated by minLevel.
type TeeHandler struct {
	base     slog.Handler
	ring     *Ring
	minLevel slog.Level
	group    string // accumulated dot-separated slog group name
}

// NewTeeHandler creates a TeeHandler that delegates to base and buffers every
// record whose level is >= minLevel into ring. A nil ring is safe; the
// handler simply delegates.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, ring *Ring) *TeeHandler {
	return &TeeHandler{
		base:     base,
		ring:     ring,
		minLevel: minLevel,
	}
}

// Enabled reports whether the base handler is enabled for the given level.
// The capture threshold does not affect this; the base handler decides
// visibility.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler, then conditionally buffers
// it. Capture happens regardless of base handler error: diagnostics should
// not depend on the base handler's success.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.ring != nil && record.Level >= h.minLevel {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Logged to stderr, not slog, to avoid recursive handler
					// invocation.
					fmt.Fprintf(os.Stderr, "[logring] capture panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.ring.Append(Entry{
				Time:    record.Time,
				Level:   levelString(record.Level),
				Message: record.Message,
				Source:  h.group,
			})
		}()
	}

	// The base handler error is returned so slog's stderr fallback makes
	// handler failures visible.
	return err
}

// WithAttrs returns a new TeeHandler whose base handler has the given
// attributes applied. The ring, minLevel and accumulated group are preserved.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &TeeHandler{
		base:     h.base.WithAttrs(attrs),
		ring:     h.ring,
		minLevel: h.minLevel,
		group:    h.group,
	}
}

// WithGroup returns a new TeeHandler whose base handler is wrapped with the
// given group name, appended to the accumulated group string.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h // slog.Handler spec: empty group name returns the receiver unchanged.
	}
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &TeeHandler{
		base:     h.base.WithGroup(name),
		ring:     h.ring,
		minLevel: h.minLevel,
		group:    newGroup,
	}
}
