package logging

import (
	"context"
	"log/slog"
	"strings"
)

// Redacted replaces the value of every scrubbed attribute.
const Redacted = "[REDACTED]"

// RedactHandler scrubs attributes whose key contains one of the configured
// fragments. Groups are walked so nested secrets are caught as well.
type RedactHandler struct {
	handler slog.Handler
	keys    []string
}

// NewRedactHandler wraps handler. Key matching is case-insensitive.
func NewRedactHandler(handler slog.Handler, keys []string) *RedactHandler {
	lowered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &RedactHandler{handler: handler, keys: lowered}
}

func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	if len(h.keys) == 0 {
		return h.handler.Handle(ctx, r)
	}
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.scrub(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.scrub(a)
	}
	return &RedactHandler{handler: h.handler.WithAttrs(scrubbed), keys: h.keys}
}

func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{handler: h.handler.WithGroup(name), keys: h.keys}
}

func (h *RedactHandler) scrub(a slog.Attr) slog.Attr {
	if h.sensitive(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	v := a.Value.Resolve()
	if v.Kind() != slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: v}
	}
	group := v.Group()
	scrubbed := make([]any, len(group))
	for i, inner := range group {
		scrubbed[i] = h.scrub(inner)
	}
	return slog.Group(a.Key, scrubbed...)
}

func (h *RedactHandler) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, k := range h.keys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}
