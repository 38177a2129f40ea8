// Package upsert applies externally sourced updates to the primary store at
// most once per key per run. The store's conditional write is the only
// deduplication: a record already stamped with the message's runId is left
// alone and the message counts as done.
package upsert

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/storage"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// Result is the outcome of applying one message.
type Result string

const (
	ResultApplied Result = "applied"
	ResultSkipped Result = "skipped"
)

// Pipeline validates messages and writes them conditionally.
type Pipeline struct {
	records storage.RecordStore
	prefix  string
	now     func() time.Time
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline writing to records.
func NewPipeline(records storage.RecordStore, cfg Config, logger *slog.Logger) *Pipeline {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		records: records,
		prefix:  cfg.EntityPrefix,
		now:     time.Now,
		logger:  logger.With("component", "upsert"),
	}
}

// KeyFor maps an entity id to its profile record key.
func (p *Pipeline) KeyFor(entityID string) model.RecordKey {
	return model.RecordKey{PK: p.prefix + entityID, SK: model.ProfileSK}
}

// Apply writes msg unless the record already carries msg.RunID.
// Validation failures return model.ErrValidation and are never retried;
// store failures return model.ErrTransient.
func (p *Pipeline) Apply(ctx context.Context, msg model.UpsertMessage) (Result, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	key := p.KeyFor(msg.EntityID)
	err := p.records.ConditionalUpsert(ctx, key, msg.RunID, msg.Payload, p.now().UTC())
	switch {
	case err == nil:
		return ResultApplied, nil
	case errors.Is(err, model.ErrConditionalWriteRejected):
		p.logger.Debug("Update already applied for run", "pk", key.PK, "run_id", msg.RunID)
		return ResultSkipped, nil
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrTransient), model.IsCanceled(err):
		return "", err
	default:
		return "", model.WrapError(model.ErrTransient, err, "upsert %s", key)
	}
}
