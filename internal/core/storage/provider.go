package storage

import "context"

// Provider represents a physical connection to a storage backend.
type Provider interface {
	Records() RecordStore
	Tokens() TokenStore
	Checkpoints() CheckpointStore

	// Close closes the connection.
	Close(ctx context.Context) error
}

// StorageFactory exposes the stores of the configured backend.
type StorageFactory interface {
	Records() RecordStore
	Tokens() TokenStore
	Checkpoints() CheckpointStore
	Close() error
}
