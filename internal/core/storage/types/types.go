package types

import (
	"context"
	"time"

	"github.com/syntrixbase/inkwell/pkg/model"
)

// StoredRecord is the persisted form of a model.Record.
type StoredRecord struct {
	// Id is "PK|SK"
	Id         string                 `bson:"_id" json:"id"`
	PK         string                 `bson:"pk" json:"pk"`
	SK         string                 `bson:"sk" json:"sk"`
	Attributes map[string]interface{} `bson:"attrs" json:"attrs"`
	RunID      string                 `bson:"run_id,omitempty" json:"run_id,omitempty"`
	UpdatedAt  int64                  `bson:"updated_at" json:"updated_at"` // Unix milliseconds
}

// ToRecord converts the stored form to the domain model.
func (s *StoredRecord) ToRecord() *model.Record {
	attrs := s.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return &model.Record{
		Key:        model.RecordKey{PK: s.PK, SK: s.SK},
		Attributes: attrs,
		RunID:      s.RunID,
		UpdatedAt:  time.UnixMilli(s.UpdatedAt).UTC(),
	}
}

// FromRecord converts a domain record into its stored form.
func FromRecord(r *model.Record) *StoredRecord {
	return &StoredRecord{
		Id:         r.Key.ID(),
		PK:         r.Key.PK,
		SK:         r.Key.SK,
		Attributes: r.Attributes,
		RunID:      r.RunID,
		UpdatedAt:  r.UpdatedAt.UnixMilli(),
	}
}

// IdempotencyToken is a single-use marker for a client-supplied key.
type IdempotencyToken struct {
	Key       string    `bson:"_id" json:"key"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Change is a change event plus the opaque position it was read at.
// Saving ResumeToken as a checkpoint and passing it back to Watch resumes after it.
type Change struct {
	Event       model.ChangeEvent
	ResumeToken []byte
}

// RecordStore is the primary store.
type RecordStore interface {
	// Get returns model.ErrNotFound if the record does not exist.
	Get(ctx context.Context, key model.RecordKey) (*model.Record, error)

	// Put creates or replaces the record's attributes and stamps UpdatedAt.
	// The recorded run id is left untouched.
	Put(ctx context.Context, rec *model.Record) error

	// Delete returns model.ErrNotFound if the record does not exist.
	Delete(ctx context.Context, key model.RecordKey) error

	// ConditionalUpsert sets attrs, runID and updatedAt only if the record has no
	// run id or a different one. Otherwise it returns model.ErrConditionalWriteRejected.
	ConditionalUpsert(ctx context.Context, key model.RecordKey, runID string, attrs map[string]interface{}, now time.Time) error

	// Watch streams committed changes. A nil resumeToken starts from now.
	// The channel is closed when ctx is done or the stream fails.
	Watch(ctx context.Context, resumeToken []byte) (<-chan Change, error)

	Close(ctx context.Context) error
}

// TokenStore persists idempotency tokens.
type TokenStore interface {
	// Create inserts a token for key that lives for ttl. It returns false when a
	// live token already exists. A live token is never overwritten; an expired
	// one is treated as absent.
	Create(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close(ctx context.Context) error
}

// CheckpointStore persists change-stream resume positions.
type CheckpointStore interface {
	// LoadCheckpoint returns nil, nil when no checkpoint exists.
	LoadCheckpoint(ctx context.Context, name string) ([]byte, error)
	SaveCheckpoint(ctx context.Context, name string, token []byte) error
}
