package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/syntrixbase/inkwell/internal/core/storage/types"
	"github.com/syntrixbase/inkwell/pkg/model"
)

const (
	defaultChangeLogRetention = 24 * time.Hour
	changeSeqBandwidth        = 128
	watchBufferSize           = 64
)

// storedValue is the on-disk record. Attributes keep their tagged form so
// string sets and numbers survive the JSON round trip.
type storedValue struct {
	PK        string                          `json:"pk"`
	SK        string                          `json:"sk"`
	RunID     string                          `json:"runId,omitempty"`
	UpdatedAt int64                           `json:"updatedAt"`
	Attrs     map[string]model.AttributeValue `json:"attrs"`
}

func (v *storedValue) toRecord() (*model.Record, error) {
	attrs, err := model.DecodeImage(v.Attrs)
	if err != nil {
		return nil, err
	}
	return &model.Record{
		Key:        model.RecordKey{PK: v.PK, SK: v.SK},
		Attributes: attrs,
		RunID:      v.RunID,
		UpdatedAt:  time.UnixMilli(v.UpdatedAt).UTC(),
	}, nil
}

// recordStore keeps records under rec/ and appends every mutation to a
// sequenced change log under log/ in the same transaction. Writers are
// serialized so log sequence order equals commit order, which lets Watch
// tail the log with a plain cursor.
type recordStore struct {
	db        *badger.DB
	seq       *badger.Sequence
	retention time.Duration

	writeMu sync.Mutex

	notifyMu sync.Mutex
	notify   chan struct{}
}

func newRecordStore(db *badger.DB, retention time.Duration) (*recordStore, error) {
	if retention <= 0 {
		retention = defaultChangeLogRetention
	}
	seq, err := db.GetSequence([]byte(changeSeqKey), changeSeqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("badger: change sequence: %w", err)
	}
	return &recordStore{
		db:        db,
		seq:       seq,
		retention: retention,
		notify:    make(chan struct{}),
	}, nil
}

func (s *recordStore) release() error {
	return s.seq.Release()
}

func recordKey(key model.RecordKey) []byte {
	return []byte(recordPrefix + key.ID())
}

func logKey(seq uint64) []byte {
	k := make([]byte, len(changeLogPrefix)+8)
	copy(k, changeLogPrefix)
	binary.BigEndian.PutUint64(k[len(changeLogPrefix):], seq)
	return k
}

func encodeToken(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func decodeToken(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, model.Validationf("badger: malformed resume token of %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func readValue(txn *badger.Txn, key model.RecordKey) (*storedValue, error) {
	item, err := txn.Get(recordKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var v storedValue
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	}); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *recordStore) Get(ctx context.Context, key model.RecordKey) (*model.Record, error) {
	var v *storedValue
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = readValue(txn, key)
		return err
	})
	if err != nil {
		return nil, model.WrapError(model.ErrTransient, err, "get %s", key)
	}
	if v == nil {
		return nil, model.ErrNotFound
	}
	return v.toRecord()
}

func (s *recordStore) Put(ctx context.Context, rec *model.Record) error {
	attrs, err := model.EncodeImage(rec.Attributes)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return s.mutate(ctx, rec.Key, func(old *storedValue) (*storedValue, error) {
		next := &storedValue{PK: rec.Key.PK, SK: rec.Key.SK, UpdatedAt: updatedAt.UnixMilli(), Attrs: attrs}
		if old != nil {
			next.RunID = old.RunID
		}
		return next, nil
	})
}

func (s *recordStore) Delete(ctx context.Context, key model.RecordKey) error {
	return s.mutate(ctx, key, func(old *storedValue) (*storedValue, error) {
		if old == nil {
			return nil, model.ErrNotFound
		}
		return nil, nil
	})
}

func (s *recordStore) ConditionalUpsert(ctx context.Context, key model.RecordKey, runID string, attrs map[string]interface{}, now time.Time) error {
	encoded, err := model.EncodeImage(attrs)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return s.mutate(ctx, key, func(old *storedValue) (*storedValue, error) {
		if old != nil && old.RunID == runID {
			return nil, model.ErrConditionalWriteRejected
		}
		merged := make(map[string]model.AttributeValue, len(encoded))
		if old != nil {
			for name, v := range old.Attrs {
				merged[name] = v
			}
		}
		for name, v := range encoded {
			merged[name] = v
		}
		return &storedValue{PK: key.PK, SK: key.SK, RunID: runID, UpdatedAt: now.UnixMilli(), Attrs: merged}, nil
	})
}

// mutate applies fn to the current value of key. A nil result deletes the
// record. The resulting change is appended to the change log atomically.
func (s *recordStore) mutate(ctx context.Context, key model.RecordKey, fn func(old *storedValue) (*storedValue, error)) error {
	if err := ctx.Err(); err != nil {
		return model.WrapError(model.ErrCanceled, err, "write %s", key)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	seq, err := s.seq.Next()
	if err != nil {
		return model.WrapError(model.ErrTransient, err, "allocate change sequence")
	}
	// sequence 0 is reserved for "no changes yet"
	seq++

	var fnErr error
	err = s.db.Update(func(txn *badger.Txn) error {
		old, err := readValue(txn, key)
		if err != nil {
			return err
		}
		next, err := fn(old)
		if err != nil {
			fnErr = err
			return nil
		}

		var event model.ChangeEvent
		switch {
		case next == nil:
			if err := txn.Delete(recordKey(key)); err != nil {
				return err
			}
			event = model.NewChangeEvent(model.EventDeleted, key, nil, imageOf(old))
		default:
			raw, err := json.Marshal(next)
			if err != nil {
				return err
			}
			if err := txn.Set(recordKey(key), raw); err != nil {
				return err
			}
			name := model.EventCreated
			if old != nil {
				name = model.EventUpdated
			}
			event = model.NewChangeEvent(name, key, imageOf(next), imageOf(old))
		}

		raw, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(logKey(seq), raw).WithTTL(s.retention))
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return model.WrapError(model.ErrTransient, err, "write %s", key)
	}

	s.broadcast()
	return nil
}

// imageOf renders a stored value as a change-event image.
func imageOf(v *storedValue) map[string]model.AttributeValue {
	if v == nil {
		return nil
	}
	img := make(map[string]model.AttributeValue, len(v.Attrs)+4)
	for name, av := range v.Attrs {
		img[name] = av
	}
	img[model.AttrPK] = model.StringValue(v.PK)
	img[model.AttrSK] = model.StringValue(v.SK)
	if v.RunID != "" {
		img[model.AttrRunID] = model.StringValue(v.RunID)
	}
	img[model.AttrUpdatedAt] = model.StringValue(time.UnixMilli(v.UpdatedAt).UTC().Format(time.RFC3339Nano))
	return img
}

func (s *recordStore) broadcast() {
	s.notifyMu.Lock()
	close(s.notify)
	s.notify = make(chan struct{})
	s.notifyMu.Unlock()
}

func (s *recordStore) waiter() <-chan struct{} {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return s.notify
}

// lastSeq returns the highest sequence in the change log, or 0.
func (s *recordStore) lastSeq() (uint64, error) {
	var last uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the largest key <= the seek key.
		seek := append([]byte(changeLogPrefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seek)
		if it.ValidForPrefix([]byte(changeLogPrefix)) {
			last = binary.BigEndian.Uint64(it.Item().Key()[len(changeLogPrefix):])
		}
		return nil
	})
	return last, err
}

// readAfter returns up to limit changes with a sequence greater than cursor.
func (s *recordStore) readAfter(cursor uint64, limit int) ([]types.Change, error) {
	var out []types.Change
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(changeLogPrefix)
		for it.Seek(logKey(cursor + 1)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			seq := binary.BigEndian.Uint64(item.Key()[len(changeLogPrefix):])
			var event model.ChangeEvent
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				return fmt.Errorf("decode change %d: %w", seq, err)
			}
			out = append(out, types.Change{Event: event, ResumeToken: encodeToken(seq)})
			if len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// Watch tails the change log. A resume token older than the retention window
// resumes at the oldest surviving entry.
func (s *recordStore) Watch(ctx context.Context, resumeToken []byte) (<-chan types.Change, error) {
	var cursor uint64
	if len(resumeToken) > 0 {
		c, err := decodeToken(resumeToken)
		if err != nil {
			return nil, err
		}
		cursor = c
	} else {
		last, err := s.lastSeq()
		if err != nil {
			return nil, model.WrapError(model.ErrTransient, err, "open change log")
		}
		cursor = last
	}

	out := make(chan types.Change, watchBufferSize)
	go func() {
		defer close(out)
		for {
			// Grab the waiter before reading so a write between the read and
			// the wait still wakes us.
			wake := s.waiter()
			changes, err := s.readAfter(cursor, watchBufferSize)
			if err != nil {
				return
			}
			for _, c := range changes {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
				cursor, _ = decodeToken(c.ResumeToken)
			}
			if len(changes) == watchBufferSize {
				continue
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *recordStore) Close(ctx context.Context) error {
	return nil
}
