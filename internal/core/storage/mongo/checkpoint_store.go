package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/syntrixbase/inkwell/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type checkpointStore struct {
	coll *mongo.Collection
}

type checkpointDoc struct {
	Name      string    `bson:"_id"`
	Token     []byte    `bson:"token"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (s *checkpointStore) LoadCheckpoint(ctx context.Context, name string) ([]byte, error) {
	var doc checkpointDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, model.WrapError(model.ErrTransient, err, "load checkpoint %s", name)
	}
	return doc.Token, nil
}

func (s *checkpointStore) SaveCheckpoint(ctx context.Context, name string, token []byte) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$set": bson.M{"token": token, "updated_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return model.WrapError(model.ErrTransient, err, "save checkpoint %s", name)
	}
	return nil
}
