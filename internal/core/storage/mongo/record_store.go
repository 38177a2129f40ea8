package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/storage/types"
	"github.com/syntrixbase/inkwell/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type recordStore struct {
	coll *mongo.Collection
}

// NewRecordStore returns a RecordStore over coll.
func NewRecordStore(coll *mongo.Collection) types.RecordStore {
	return &recordStore{coll: coll}
}

func (s *recordStore) Get(ctx context.Context, key model.RecordKey) (*model.Record, error) {
	var doc types.StoredRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": key.ID()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, model.WrapError(model.ErrTransient, err, "get %s", key)
	}
	return normalizeRecord(&doc).ToRecord(), nil
}

func (s *recordStore) Put(ctx context.Context, rec *model.Record) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	update := bson.M{"$set": bson.M{
		"pk":         rec.Key.PK,
		"sk":         rec.Key.SK,
		"attrs":      attrs,
		"updated_at": updatedAt.UnixMilli(),
	}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": rec.Key.ID()}, update, options.Update().SetUpsert(true))
	if err != nil {
		return model.WrapError(model.ErrTransient, err, "put %s", rec.Key)
	}
	return nil
}

func (s *recordStore) Delete(ctx context.Context, key model.RecordKey) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": key.ID()})
	if err != nil {
		return model.WrapError(model.ErrTransient, err, "delete %s", key)
	}
	if res.DeletedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ConditionalUpsert applies the write only when run_id is absent or differs from runID.
//
// With upsert enabled, a filter miss on an existing document turns into an insert
// that collides on _id. The collision is retried once as a plain update: a match
// there means another writer created the document under a different run.
func (s *recordStore) ConditionalUpsert(ctx context.Context, key model.RecordKey, runID string, attrs map[string]interface{}, now time.Time) error {
	filter := bson.M{
		"_id": key.ID(),
		"$or": bson.A{
			bson.M{"run_id": bson.M{"$exists": false}},
			bson.M{"run_id": bson.M{"$ne": runID}},
		},
	}
	set := bson.M{
		"pk":         key.PK,
		"sk":         key.SK,
		"run_id":     runID,
		"updated_at": now.UnixMilli(),
	}
	for name, v := range attrs {
		set["attrs."+name] = v
	}
	update := bson.M{"$set": set}

	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return model.WrapError(model.ErrTransient, err, "conditional upsert %s", key)
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return model.WrapError(model.ErrTransient, err, "conditional upsert %s", key)
	}
	if res.MatchedCount == 0 {
		return model.ErrConditionalWriteRejected
	}
	return nil
}

func (s *recordStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "pk", Value: 1}, {Key: "sk", Value: 1}},
	})
	return err
}

func (s *recordStore) Close(ctx context.Context) error {
	return nil
}

// Watch tails the collection's change stream.
func (s *recordStore) Watch(ctx context.Context, resumeToken []byte) (<-chan types.Change, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}}}},
		}}},
	}

	// updateLookup gives the post-image on update; pre-images need collMod (see Provider).
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if len(resumeToken) > 0 {
		opts.SetResumeAfter(bson.Raw(resumeToken))
	}

	stream, err := s.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, model.WrapError(model.ErrTransient, err, "watch %s", s.coll.Name())
	}

	out := make(chan types.Change)

	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var ev struct {
				ID                       bson.Raw            `bson:"_id"`
				OperationType            string              `bson:"operationType"`
				FullDocument             *types.StoredRecord `bson:"fullDocument"`
				FullDocumentBeforeChange *types.StoredRecord `bson:"fullDocumentBeforeChange"`
				DocumentKey              struct {
					ID string `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := stream.Decode(&ev); err != nil {
				slog.Warn("Failed to decode change event", "error", err)
				continue
			}

			change, ok := toChange(ev.OperationType, ev.DocumentKey.ID, ev.FullDocument, ev.FullDocumentBeforeChange)
			if !ok {
				continue
			}
			change.ResumeToken = append([]byte(nil), ev.ID...)

			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			slog.Error("Change stream terminated", "collection", s.coll.Name(), "error", err)
		}
	}()

	return out, nil
}

// toChange maps a raw change notification onto a ChangeEvent.
func toChange(op, docID string, after, before *types.StoredRecord) (types.Change, bool) {
	key, err := model.ParseRecordID(docID)
	if err != nil {
		slog.Warn("Skipping change with unparseable id", "id", docID)
		return types.Change{}, false
	}

	newImage, ok := imageOf(after)
	if !ok {
		return types.Change{}, false
	}
	oldImage, ok := imageOf(before)
	if !ok {
		return types.Change{}, false
	}

	var name model.EventName
	switch op {
	case "insert":
		name = model.EventCreated
	case "update", "replace":
		if after == nil {
			// Deleted before the lookup ran; the delete event follows.
			return types.Change{}, false
		}
		name = model.EventUpdated
	case "delete":
		name = model.EventDeleted
		newImage = nil
	default:
		return types.Change{}, false
	}

	return types.Change{Event: model.NewChangeEvent(name, key, newImage, oldImage)}, true
}

func imageOf(doc *types.StoredRecord) (map[string]model.AttributeValue, bool) {
	if doc == nil {
		return nil, true
	}
	img, err := normalizeRecord(doc).ToRecord().Image()
	if err != nil {
		slog.Warn("Skipping change with unencodable image", "id", doc.Id, "error", err)
		return nil, false
	}
	return img, true
}

// normalizeRecord converts driver-specific decode types into plain Go values.
func normalizeRecord(doc *types.StoredRecord) *types.StoredRecord {
	if doc.Attributes != nil {
		doc.Attributes = normalizeValue(doc.Attributes).(map[string]interface{})
	}
	return doc
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalizeValue(item)
		}
		return out
	case primitive.M:
		return normalizeValue(map[string]interface{}(t))
	case primitive.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case primitive.A:
		return normalizeSlice([]interface{}(t))
	case []interface{}:
		return normalizeSlice(t)
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

// normalizeSlice returns []string for all-string arrays so they round-trip as string sets.
func normalizeSlice(items []interface{}) interface{} {
	strs := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			break
		}
		strs = append(strs, s)
	}
	if len(items) > 0 && len(strs) == len(items) {
		return strs
	}
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = normalizeValue(item)
	}
	return out
}
