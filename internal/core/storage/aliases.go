package storage

import (
	"github.com/syntrixbase/inkwell/internal/core/storage/types"
)

type StoredRecord = types.StoredRecord
type IdempotencyToken = types.IdempotencyToken
type Change = types.Change
type RecordStore = types.RecordStore
type TokenStore = types.TokenStore
type CheckpointStore = types.CheckpointStore
