package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/syntrixbase/inkwell/pkg/model"
)

type checkpointStore struct {
	db *badger.DB
}

func (s *checkpointStore) LoadCheckpoint(ctx context.Context, name string) ([]byte, error) {
	var token []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(checkpointPrefix + name))
		if err != nil {
			return err
		}
		token, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, model.WrapError(model.ErrTransient, err, "load checkpoint %s", name)
	}
	return token, nil
}

func (s *checkpointStore) SaveCheckpoint(ctx context.Context, name string, token []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(checkpointPrefix+name), token)
	})
	if err != nil {
		return model.WrapError(model.ErrTransient, err, "save checkpoint %s", name)
	}
	return nil
}
