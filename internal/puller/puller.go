// Package puller tails the primary store's change stream and publishes each
// change to the queue, one subject per partition key. The resume token is
// checkpointed only after the events before it were published, so a restart
// replays rather than loses changes.
package puller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/flowcontrol"
	"github.com/syntrixbase/inkwell/internal/core/pubsub"
	"github.com/syntrixbase/inkwell/internal/core/storage"
	"github.com/syntrixbase/inkwell/internal/metrics"
	"github.com/syntrixbase/inkwell/pkg/model"
)

var errStreamClosed = errors.New("change stream closed")

// Puller moves committed changes from the store to the queue.
type Puller struct {
	records     storage.RecordStore
	checkpoints storage.CheckpointStore
	publisher   pubsub.Publisher
	cfg         Config
	logger      *slog.Logger
	tracker     *Tracker
}

// New creates a Puller. publisher should carry the change stream as its
// subject prefix.
func New(records storage.RecordStore, checkpoints storage.CheckpointStore, publisher pubsub.Publisher, cfg Config, logger *slog.Logger) *Puller {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Puller{
		records:     records,
		checkpoints: checkpoints,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger.With("component", "puller"),
		tracker:     NewTracker(cfg.CheckpointInterval, cfg.CheckpointEvents),
	}
}

// Run watches and publishes until ctx is canceled, reopening the stream
// after failures.
func (p *Puller) Run(ctx context.Context) error {
	p.logger.Info("Puller started", "checkpoint", p.cfg.CheckpointName)
	for {
		err := p.watch(ctx)
		if ctx.Err() != nil {
			p.saveCheckpointOnShutdown()
			p.logger.Info("Puller stopped")
			return nil
		}
		p.logger.Error("Change stream error, reconnecting", "error", err, "delay", p.cfg.ReconnectDelay)
		select {
		case <-time.After(p.cfg.ReconnectDelay):
		case <-ctx.Done():
			p.saveCheckpointOnShutdown()
			return nil
		}
	}
}

func (p *Puller) watch(ctx context.Context) error {
	token := p.tracker.LastToken()
	if token == nil {
		loaded, err := p.checkpoints.LoadCheckpoint(ctx, p.cfg.CheckpointName)
		if err != nil {
			p.logger.Warn("Failed to load checkpoint, starting from now", "error", err)
		}
		token = loaded
	}

	changes, err := p.records.Watch(ctx, token)
	if err != nil && token != nil && errors.Is(err, model.ErrValidation) {
		p.logger.Warn("Stored resume token rejected, starting from now", "error", err)
		changes, err = p.records.Watch(ctx, nil)
	}
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	if token != nil {
		p.logger.Info("Resuming change stream from checkpoint")
	}

	for change := range changes {
		if err := p.publish(ctx, change.Event); err != nil {
			return err
		}
		if p.tracker.RecordEvent(change.ResumeToken) {
			p.saveCheckpoint(ctx)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errStreamClosed
}

// publish retries until the event is accepted or ctx is done. Skipping an
// event would silently desync the index.
func (p *Puller) publish(ctx context.Context, evt model.ChangeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	key := evt.Key()
	subject := pubsub.SubjectToken(key.PK)

	for attempt := 1; ; attempt++ {
		err := p.publisher.Publish(ctx, subject, data)
		if err == nil {
			metrics.ChangesPublished.Inc()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.PublishErrors.Inc()
		delay := flowcontrol.Backoff(attempt, 100*time.Millisecond, p.cfg.MaxPublishBackoff)
		p.logger.Warn("Failed to publish change event",
			"event", evt.EventName, "pk", key.PK, "attempt", attempt, "retry_in", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Puller) saveCheckpoint(ctx context.Context) {
	if err := p.checkpoints.SaveCheckpoint(ctx, p.cfg.CheckpointName, p.tracker.LastToken()); err != nil {
		metrics.CheckpointErrors.Inc()
		p.logger.Error("Failed to save checkpoint", "error", err)
		return
	}
	p.tracker.MarkCheckpointed()
}

func (p *Puller) saveCheckpointOnShutdown() {
	if !p.tracker.Pending() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.saveCheckpoint(ctx)
	p.logger.Debug("Checkpoint saved on shutdown")
}
