package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/inkwell/internal/core/storage/types"
	"github.com/syntrixbase/inkwell/pkg/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var artist42 = model.RecordKey{PK: "ARTIST#42", SK: model.ProfileSK}

func TestRecordStore_PutGetDelete(t *testing.T) {
	env := setupTestEnv(t)
	s := env.Provider.Records()
	ctx := context.Background()

	_, err := s.Get(ctx, artist42)
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = s.Put(ctx, &model.Record{
		Key:        artist42,
		Attributes: map[string]interface{}{"name": "Jane", "styles": []string{"traditional", "tribal"}},
	})
	require.NoError(t, err)

	rec, err := s.Get(ctx, artist42)
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec.Attributes["name"])
	assert.Equal(t, []string{"traditional", "tribal"}, rec.Attributes["styles"])
	assert.False(t, rec.UpdatedAt.IsZero())

	require.NoError(t, s.Delete(ctx, artist42))
	assert.ErrorIs(t, s.Delete(ctx, artist42), model.ErrNotFound)
}

func TestRecordStore_ConditionalUpsert(t *testing.T) {
	env := setupTestEnv(t)
	s := env.Provider.Records()
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// First write for a new record
	require.NoError(t, s.ConditionalUpsert(ctx, artist42, "S1", map[string]interface{}{"name": "Jane"}, t0))

	// Same run: rejected, record unchanged
	err := s.ConditionalUpsert(ctx, artist42, "S1", map[string]interface{}{"name": "Changed"}, t0.Add(time.Minute))
	assert.ErrorIs(t, err, model.ErrConditionalWriteRejected)
	rec, err := s.Get(ctx, artist42)
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec.Attributes["name"])
	assert.Equal(t, "S1", rec.RunID)
	assert.Equal(t, t0, rec.UpdatedAt)

	// New run wins
	require.NoError(t, s.ConditionalUpsert(ctx, artist42, "S2", map[string]interface{}{"name": "Jane Doe"}, t0.Add(2*time.Minute)))
	rec, err = s.Get(ctx, artist42)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", rec.Attributes["name"])
	assert.Equal(t, "S2", rec.RunID)
}

func TestRecordStore_ConditionalUpsertOnBusinessRecord(t *testing.T) {
	env := setupTestEnv(t)
	s := env.Provider.Records()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &model.Record{Key: artist42, Attributes: map[string]interface{}{"name": "Jane", "location": "London"}}))
	require.NoError(t, s.ConditionalUpsert(ctx, artist42, "S1", map[string]interface{}{"name": "Jane B"}, time.Now()))

	rec, err := s.Get(ctx, artist42)
	require.NoError(t, err)
	assert.Equal(t, "Jane B", rec.Attributes["name"])
	assert.Equal(t, "London", rec.Attributes["location"])
}

func TestRecordStore_Watch(t *testing.T) {
	env := setupTestEnv(t)
	s := env.Provider.Records()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch, err := s.Watch(ctx, nil)
	if err != nil {
		t.Skipf("change streams unavailable (replica set required): %v", err)
	}

	require.NoError(t, s.Put(ctx, &model.Record{Key: artist42, Attributes: map[string]interface{}{"name": "Jane"}}))
	require.NoError(t, s.Delete(ctx, artist42))

	var got []types.Change
	for len(got) < 2 {
		select {
		case c, ok := <-ch:
			require.True(t, ok)
			got = append(got, c)
		case <-ctx.Done():
			t.Fatal("timed out waiting for changes")
		}
	}

	assert.Equal(t, model.EventCreated, got[0].Event.EventName)
	assert.Equal(t, artist42, got[0].Event.Key())
	assert.Equal(t, model.StringValue("Jane"), got[0].Event.NewImage["name"])
	assert.NotEmpty(t, got[0].ResumeToken)

	assert.Equal(t, model.EventDeleted, got[1].Event.EventName)
	assert.Equal(t, artist42, got[1].Event.Key())
	assert.Nil(t, got[1].Event.NewImage)
}

func TestToChange(t *testing.T) {
	after := &types.StoredRecord{Id: artist42.ID(), PK: artist42.PK, SK: artist42.SK, Attributes: map[string]interface{}{"name": "Jane"}}
	before := &types.StoredRecord{Id: artist42.ID(), PK: artist42.PK, SK: artist42.SK, Attributes: map[string]interface{}{"name": "Old"}}

	c, ok := toChange("insert", artist42.ID(), after, nil)
	require.True(t, ok)
	assert.Equal(t, model.EventCreated, c.Event.EventName)
	assert.Nil(t, c.Event.OldImage)

	c, ok = toChange("update", artist42.ID(), after, before)
	require.True(t, ok)
	assert.Equal(t, model.EventUpdated, c.Event.EventName)
	assert.Equal(t, model.StringValue("Old"), c.Event.OldImage["name"])

	_, ok = toChange("update", artist42.ID(), nil, before)
	assert.False(t, ok)

	c, ok = toChange("delete", artist42.ID(), nil, before)
	require.True(t, ok)
	assert.Equal(t, model.EventDeleted, c.Event.EventName)
	assert.Nil(t, c.Event.NewImage)
	assert.NotNil(t, c.Event.OldImage)

	_, ok = toChange("drop", artist42.ID(), nil, nil)
	assert.False(t, ok)

	_, ok = toChange("insert", "garbage", after, nil)
	assert.False(t, ok)
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := map[string]interface{}{
		"styles": primitive.A{"a", "b"},
		"mixed":  primitive.A{"a", int32(1)},
		"empty":  primitive.A{},
		"nested": primitive.D{{Key: "city", Value: "London"}},
		"when":   primitive.NewDateTimeFromTime(ts),
	}
	out := normalizeValue(in).(map[string]interface{})

	assert.Equal(t, []string{"a", "b"}, out["styles"])
	assert.Equal(t, []interface{}{"a", int32(1)}, out["mixed"])
	assert.Equal(t, []interface{}{}, out["empty"])
	assert.Equal(t, map[string]interface{}{"city": "London"}, out["nested"])
	assert.Equal(t, ts, out["when"])
}
