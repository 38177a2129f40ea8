package upsert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/flowcontrol"
	"github.com/syntrixbase/inkwell/internal/core/pubsub"
	"github.com/syntrixbase/inkwell/internal/metrics"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// DeadLetter is the body published for a message that cannot be applied.
type DeadLetter struct {
	Subject  string    `json:"subject"`
	Reason   string    `json:"reason"`
	Attempts uint64    `json:"attempts"`
	FailedAt time.Time `json:"failedAt"`
	// Message holds the original body when it was valid JSON, Raw otherwise.
	Message json.RawMessage `json:"message,omitempty"`
	Raw     []byte          `json:"raw,omitempty"`
}

type job struct {
	msg pubsub.Message
	um  model.UpsertMessage
}

// Consumer feeds queued upsert messages through a Pipeline. Messages for the
// same entity always land on the same worker.
type Consumer struct {
	consumer   pubsub.Consumer
	deadLetter pubsub.Publisher
	pipeline   *Pipeline
	cfg        Config
	logger     *slog.Logger

	workerChans []chan job
	wg          sync.WaitGroup

	closing       atomic.Bool
	inFlightCount atomic.Int32
}

// NewConsumer creates a Consumer. deadLetter receives unrecoverable messages.
func NewConsumer(consumer pubsub.Consumer, deadLetter pubsub.Publisher, pipeline *Pipeline, cfg Config, logger *slog.Logger) *Consumer {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		consumer:   consumer,
		deadLetter: deadLetter,
		pipeline:   pipeline,
		cfg:        cfg,
		logger:     logger.With("component", "upsert-consumer"),
	}
}

// Run consumes until ctx is canceled, then drains in-flight work.
func (c *Consumer) Run(ctx context.Context) error {
	msgCh, err := c.consumer.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	// Workers outlive ctx so queued messages can finish during shutdown.
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer workCancel()

	c.workerChans = make([]chan job, c.cfg.Workers)
	for i := range c.workerChans {
		c.workerChans[i] = make(chan job, c.cfg.ChannelBufSize)
		c.wg.Add(1)
		go c.workerLoop(workCtx, i)
	}

	c.logger.Info("Upsert consumer started", "stream", c.cfg.StreamName, "workers", c.cfg.Workers)

	for msg := range msgCh {
		c.dispatch(workCtx, msg)
	}

	c.logger.Info("Stopping upsert consumer...")
	c.closing.Store(true)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
	defer drainCancel()
	c.waitForDrain(drainCtx)

	for _, ch := range c.workerChans {
		close(ch)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("All upsert workers stopped gracefully")
	case <-time.After(c.cfg.ShutdownTimeout):
		c.logger.Warn("Shutdown timeout exceeded, abandoning in-flight upserts")
		workCancel()
	}
	return nil
}

func (c *Consumer) waitForDrain(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for c.inFlightCount.Load() > 0 {
		select {
		case <-ctx.Done():
			c.logger.Warn("Drain timeout, messages still in-flight", "remaining", c.inFlightCount.Load())
			return
		case <-ticker.C:
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg pubsub.Message) {
	c.inFlightCount.Add(1)
	defer c.inFlightCount.Add(-1)

	if c.closing.Load() {
		_ = msg.Nak()
		return
	}

	var um model.UpsertMessage
	if err := json.Unmarshal(msg.Data(), &um); err != nil {
		c.sendToDeadLetter(ctx, msg, fmt.Errorf("%w: decode: %v", model.ErrValidation, err))
		return
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(um.EntityID))
	c.workerChans[int(h.Sum32()%uint32(len(c.workerChans)))] <- job{msg: msg, um: um}
}

func (c *Consumer) workerLoop(ctx context.Context, id int) {
	defer c.wg.Done()
	for j := range c.workerChans[id] {
		c.process(ctx, j)
	}
}

func (c *Consumer) process(ctx context.Context, j job) {
	msgCtx, cancel := context.WithTimeout(ctx, c.cfg.MessageTimeout)
	result, err := c.pipeline.Apply(msgCtx, j.um)
	cancel()

	if err == nil {
		metrics.UpsertMessages.WithLabelValues(string(result)).Inc()
		_ = j.msg.Ack()
		return
	}

	if errors.Is(err, model.ErrValidation) {
		c.sendToDeadLetter(ctx, j.msg, err)
		return
	}

	md, metaErr := j.msg.Metadata()
	if metaErr != nil {
		c.logger.Error("Failed to get message metadata", "error", metaErr)
		_ = j.msg.Nak()
		return
	}
	attempt := int(md.NumDelivered)
	if attempt >= c.cfg.MaxAttempts {
		c.logger.Error("Max attempts reached for upsert",
			"entity_id", j.um.EntityID, "run_id", j.um.RunID, "attempts", attempt, "error", err)
		c.sendToDeadLetter(ctx, j.msg, err)
		return
	}

	backoff := flowcontrol.Backoff(attempt, c.cfg.InitialBackoff, c.cfg.MaxBackoff)
	c.logger.Warn("Upsert failed, retrying",
		"entity_id", j.um.EntityID, "run_id", j.um.RunID, "attempt", attempt, "backoff", backoff, "error", err)
	metrics.UpsertMessages.WithLabelValues("retry").Inc()
	_ = j.msg.NakWithDelay(backoff)
}

// sendToDeadLetter publishes msg to the dead-letter subject and terminates it.
// If the publish fails the message is redelivered instead of being lost.
func (c *Consumer) sendToDeadLetter(ctx context.Context, msg pubsub.Message, cause error) {
	dl := DeadLetter{
		Subject:  msg.Subject(),
		Reason:   cause.Error(),
		FailedAt: time.Now().UTC(),
	}
	if md, err := msg.Metadata(); err == nil {
		dl.Attempts = md.NumDelivered
	}
	if json.Valid(msg.Data()) {
		dl.Message = json.RawMessage(msg.Data())
	} else {
		dl.Raw = msg.Data()
	}

	body, err := json.Marshal(dl)
	if err == nil {
		err = c.deadLetter.Publish(ctx, c.cfg.DeadLetterSubject, body)
	}
	if err != nil {
		c.logger.Error("Failed to dead-letter upsert message", "subject", msg.Subject(), "error", err)
		_ = msg.NakWithDelay(c.cfg.InitialBackoff)
		return
	}

	label := "dead_letter"
	if errors.Is(cause, model.ErrValidation) {
		label = "invalid"
	}
	metrics.UpsertMessages.WithLabelValues(label).Inc()
	c.logger.Warn("Upsert message dead-lettered", "subject", msg.Subject(), "reason", cause)
	_ = msg.Term()
}
