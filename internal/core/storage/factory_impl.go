package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syntrixbase/inkwell/internal/core/storage/badger"
	"github.com/syntrixbase/inkwell/internal/core/storage/config"
	"github.com/syntrixbase/inkwell/internal/core/storage/mongo"
	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// Dependency injection for testing
var newMongoProvider = func(ctx context.Context, cfg config.MongoConfig) (Provider, error) {
	return mongo.NewProvider(ctx, cfg)
}

var newBadgerProvider = func(cfg config.BadgerConfig) (Provider, error) {
	return badger.Open(badger.Config{
		Dir:                cfg.Dir,
		InMemory:           cfg.InMemory,
		SyncWrites:         cfg.SyncWrites,
		GCInterval:         cfg.GCInterval,
		ChangeLogRetention: cfg.ChangeLogRetention,
		Logger:             slog.Default(),
	})
}

type factory struct {
	provider Provider
	mu       sync.Mutex
	closed   bool
}

// NewFactory opens the backend for the deployment mode: MongoDB when
// distributed, embedded Badger when standalone.
func NewFactory(ctx context.Context, mode services.DeploymentMode, cfg config.Config) (StorageFactory, error) {
	var (
		p   Provider
		err error
	)
	switch {
	case mode.IsStandalone():
		p, err = newBadgerProvider(cfg.Badger)
	case mode.IsDistributed():
		p, err = newMongoProvider(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("unsupported deployment mode: %s", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	return &factory{provider: p}, nil
}

func (f *factory) Records() RecordStore {
	return f.provider.Records()
}

func (f *factory) Tokens() TokenStore {
	return f.provider.Tokens()
}

func (f *factory) Checkpoints() CheckpointStore {
	return f.provider.Checkpoints()
}

func (f *factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if err := f.provider.Close(context.Background()); err != nil {
		return fmt.Errorf("errors closing provider: %w", err)
	}
	return nil
}
