package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// tokenStore keeps one key per token. The value holds the expiry in unix
// nanoseconds; Badger's own TTL only has second resolution and is used for
// reclaiming space, not for deciding liveness.
type tokenStore struct {
	db  *badger.DB
	now func() time.Time
}

func (s *tokenStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *tokenStore) Create(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, model.WrapError(model.ErrCanceled, err, "create token")
	}

	now := s.clock()
	k := []byte(tokenPrefix + key)
	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		switch {
		case err == nil:
			var expires int64
			if err := item.Value(func(val []byte) error {
				if len(val) == 8 {
					expires = int64(binary.BigEndian.Uint64(val))
				}
				return nil
			}); err != nil {
				return err
			}
			if expires > now.UnixNano() {
				return nil
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(now.Add(ttl).UnixNano()))
		// round up so badger never drops a token before it is logically expired
		entry := badger.NewEntry(k, val).WithTTL(ttl + time.Second)
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			// a concurrent Create for the same key committed first
			return false, nil
		}
		return false, model.WrapError(model.ErrTransient, err, "create token")
	}
	return created, nil
}

func (s *tokenStore) Close(ctx context.Context) error {
	return nil
}
