package mongo

import (
	"context"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/storage/types"
	"github.com/syntrixbase/inkwell/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type tokenStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewTokenStore returns a TokenStore over coll.
func NewTokenStore(coll *mongo.Collection) types.TokenStore {
	return &tokenStore{coll: coll}
}

func (s *tokenStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Create inserts the token. The TTL monitor only sweeps about once a minute,
// so a duplicate whose expires_at has passed is re-armed in place.
func (s *tokenStore) Create(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.clock()
	doc := types.IdempotencyToken{
		Key:       key,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	_, err := s.coll.InsertOne(ctx, doc)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, model.WrapError(model.ErrTransient, err, "create idempotency token")
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"expires_at": doc.ExpiresAt, "created_at": doc.CreatedAt}},
	)
	if err != nil {
		return false, model.WrapError(model.ErrTransient, err, "re-arm idempotency token")
	}
	return res.MatchedCount == 1, nil
}

func (s *tokenStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (s *tokenStore) Close(ctx context.Context) error {
	return nil
}
