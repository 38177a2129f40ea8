package upsert

import (
	"context"
	"encoding/json"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// Submitter enqueues upsert messages for the Consumer.
type Submitter struct {
	pub pubsub.Publisher
}

// NewSubmitter wraps a publisher whose subject prefix is the upsert stream.
func NewSubmitter(pub pubsub.Publisher) *Submitter {
	return &Submitter{pub: pub}
}

// Submit validates msg and publishes it on the entity's subject.
func (s *Submitter) Submit(ctx context.Context, msg model.UpsertMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return model.Validationf("encode upsert message: %v", err)
	}
	if err := s.pub.Publish(ctx, pubsub.SubjectToken(msg.EntityID), data); err != nil {
		return model.WrapError(model.ErrTransient, err, "publish upsert for %s", msg.EntityID)
	}
	return nil
}
