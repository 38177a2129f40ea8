package logging

import (
	"context"
	"errors"
	"log/slog"
)

// sink is one output with its own minimum level.
type sink struct {
	handler slog.Handler
	min     slog.Level
}

func (s sink) accepts(ctx context.Context, level slog.Level) bool {
	return level >= s.min && s.handler.Enabled(ctx, level)
}

// fanout writes each record to every sink that accepts its level. A failing
// sink does not starve the others.
type fanout struct {
	sinks []sink
}

func newFanout(sinks ...sink) *fanout {
	return &fanout{sinks: sinks}
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.accepts(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.accepts(ctx, r.Level) {
			continue
		}
		if err := s.handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *fanout) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *fanout) derive(fn func(slog.Handler) slog.Handler) *fanout {
	sinks := make([]sink, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = sink{handler: fn(s.handler), min: s.min}
	}
	return &fanout{sinks: sinks}
}
