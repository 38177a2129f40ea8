// Package syncer keeps the search index in step with the primary store. It
// consumes change events from the queue, projects each one into an index
// action and applies it, serializing events that share a partition key.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/flowcontrol"
	"github.com/syntrixbase/inkwell/internal/core/pubsub"
	"github.com/syntrixbase/inkwell/internal/metrics"
	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/pkg/model"
	"golang.org/x/sync/errgroup"
)

// errBlocked marks events held back because an earlier event for the same
// key failed in the same batch.
var errBlocked = errors.New("earlier event for key failed")

// Outcome is the result of syncing one event of a batch.
type Outcome struct {
	Index     int
	Key       model.RecordKey
	EventName model.EventName
	Action    ActionType
	Err       error
}

// Worker applies change events to a search index.
type Worker struct {
	index     search.Index
	consumer  pubsub.Consumer
	projector *Projector
	cfg       Config
	logger    *slog.Logger
}

// NewWorker creates a Worker. consumer may be nil when only ProcessBatch is used.
func NewWorker(index search.Index, consumer pubsub.Consumer, cfg Config, logger *slog.Logger) *Worker {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		index:     index,
		consumer:  consumer,
		projector: NewProjector(cfg.TrackedPrefix),
		cfg:       cfg,
		logger:    logger.With("component", "syncer"),
	}
}

// ProcessBatch applies events and returns one outcome per event, in input
// order. Events sharing a partition key run sequentially in arrival order;
// distinct keys run concurrently. A failure never aborts other keys.
func (w *Worker) ProcessBatch(ctx context.Context, events []model.ChangeEvent) []Outcome {
	outcomes := make([]Outcome, len(events))
	if len(events) == 0 {
		return outcomes
	}
	metrics.SyncBatchSize.Observe(float64(len(events)))

	var order []string
	groups := make(map[string][]int)
	for i, evt := range events {
		pk := evt.Key().PK
		if pk == "" {
			// keyless events fail projection on their own
			pk = fmt.Sprintf("\x00%d", i)
		}
		if _, ok := groups[pk]; !ok {
			order = append(order, pk)
		}
		groups[pk] = append(groups[pk], i)
	}

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for _, pk := range order {
		indexes := groups[pk]
		g.Go(func() error {
			var failed bool
			for _, i := range indexes {
				evt := events[i]
				out := Outcome{Index: i, Key: evt.Key(), EventName: evt.EventName}
				if failed {
					out.Action = ActionSkip
					out.Err = model.WrapError(model.ErrTransient, errBlocked, "sync %s", out.Key)
				} else {
					out.Action, out.Err = w.apply(ctx, evt)
				}
				if out.Err != nil {
					failed = true
				}
				w.record(out)
				outcomes[i] = out
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (w *Worker) apply(ctx context.Context, evt model.ChangeEvent) (ActionType, error) {
	action, err := w.projector.Project(evt)
	if err != nil {
		return action.Type, err
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.EventTimeout)
	defer cancel()

	switch action.Type {
	case ActionUpsert:
		err = w.index.Upsert(callCtx, *action.Document)
	case ActionDelete:
		err = w.index.Delete(callCtx, action.ID)
	default:
		return action.Type, nil
	}
	if err != nil && !errors.Is(err, model.ErrTransient) && !errors.Is(err, model.ErrValidation) {
		err = model.WrapError(model.ErrTransient, err, "%s %s", action.Type, action.ID)
	}
	return action.Type, err
}

func (w *Worker) record(out Outcome) {
	status := "ok"
	if out.Err != nil {
		status = "error"
		w.logger.Warn("Failed to sync change event",
			"event", out.EventName,
			"pk", out.Key.PK,
			"sk", out.Key.SK,
			"error", out.Err,
		)
	}
	metrics.SyncEvents.WithLabelValues(string(out.EventName), string(out.Action), status).Inc()
}

// Run consumes change events until ctx is canceled. Messages are grouped
// into batches of up to BatchSize, or whatever arrived within BatchWindow of
// the first message in the batch.
func (w *Worker) Run(ctx context.Context) error {
	if w.consumer == nil {
		return errors.New("syncer: no consumer configured")
	}
	msgCh, err := w.consumer.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	w.logger.Info("Sync worker started",
		"stream", w.cfg.StreamName,
		"batch_size", w.cfg.BatchSize,
		"concurrency", w.cfg.Concurrency,
	)

	batch := make([]pubsub.Message, 0, w.cfg.BatchSize)
	timer := time.NewTimer(w.cfg.BatchWindow)
	timer.Stop()
	defer timer.Stop()

	flush := func() {
		timer.Stop()
		if len(batch) == 0 {
			return
		}
		w.handleBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				// redelivered to the next subscriber
				for _, m := range batch {
					_ = m.Nak()
				}
				w.logger.Info("Sync worker stopped")
				return nil
			}
			batch = append(batch, msg)
			if len(batch) == 1 {
				timer.Reset(w.cfg.BatchWindow)
			}
			if len(batch) >= w.cfg.BatchSize {
				flush()
			}
		case <-timer.C:
			flush()
		}
	}
}

func (w *Worker) handleBatch(ctx context.Context, msgs []pubsub.Message) {
	events := make([]model.ChangeEvent, 0, len(msgs))
	owners := make([]pubsub.Message, 0, len(msgs))
	for _, msg := range msgs {
		var evt model.ChangeEvent
		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			w.logger.Error("Undecodable change event, terminating", "subject", msg.Subject(), "error", err)
			metrics.SyncEvents.WithLabelValues("unknown", string(ActionSkip), "invalid").Inc()
			_ = msg.Term()
			continue
		}
		events = append(events, evt)
		owners = append(owners, msg)
	}

	for _, out := range w.ProcessBatch(ctx, events) {
		w.settle(owners[out.Index], out)
	}
}

func (w *Worker) settle(msg pubsub.Message, out Outcome) {
	switch {
	case out.Err == nil:
		_ = msg.Ack()
	case errors.Is(out.Err, model.ErrValidation):
		_ = msg.Term()
	case model.IsCanceled(out.Err):
		_ = msg.Nak()
	default:
		md, err := msg.Metadata()
		if err != nil {
			_ = msg.Nak()
			return
		}
		attempt := int(md.NumDelivered)
		if attempt >= w.cfg.MaxAttempts {
			w.logger.Error("Max attempts reached, terminating change event",
				"event", out.EventName, "pk", out.Key.PK, "attempts", attempt)
			_ = msg.Term()
			return
		}
		_ = msg.NakWithDelay(flowcontrol.Backoff(attempt, w.cfg.InitialBackoff, w.cfg.MaxBackoff))
	}
}
