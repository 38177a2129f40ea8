package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func textSink(buf *bytes.Buffer, min slog.Level) sink {
	return sink{handler: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}), min: min}
}

func TestFanout_RoutesByLevel(t *testing.T) {
	var all, errs bytes.Buffer
	logger := slog.New(newFanout(textSink(&all, slog.LevelInfo), textSink(&errs, slog.LevelWarn)))

	logger.Debug("cache miss")
	logger.Info("artist created", "pk", "ARTIST#1")
	logger.Warn("search degraded", "breaker", "open")

	assert.NotContains(t, all.String(), "cache miss")
	assert.Contains(t, all.String(), "pk=ARTIST#1")
	assert.Contains(t, all.String(), "search degraded")
	assert.NotContains(t, errs.String(), "artist created")
	assert.Contains(t, errs.String(), "breaker=open")
}

func TestFanout_Enabled(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(textSink(&buf, slog.LevelWarn))
	ctx := context.Background()

	assert.False(t, f.Enabled(ctx, slog.LevelInfo))
	assert.True(t, f.Enabled(ctx, slog.LevelError))
	assert.False(t, newFanout().Enabled(ctx, slog.LevelError))
}

func TestFanout_FailingSinkDoesNotStarveOthers(t *testing.T) {
	var buf bytes.Buffer
	bad := sink{handler: failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)}, min: slog.LevelInfo}
	f := newFanout(bad, textSink(&buf, slog.LevelInfo))

	err := f.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "run accepted", 0))
	assert.EqualError(t, err, "disk full")
	assert.Contains(t, buf.String(), "run accepted")
}

func TestFanout_WithAttrsAndGroup(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(newFanout(textSink(&a, slog.LevelInfo), textSink(&b, slog.LevelInfo)))

	logger.With("component", "syncer").WithGroup("event").Info("applied", "pk", "ARTIST#9")

	for _, out := range []string{a.String(), b.String()} {
		assert.Contains(t, out, "component=syncer")
		assert.Contains(t, out, "event.pk=ARTIST#9")
	}
}
