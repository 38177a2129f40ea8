package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/inkwell/internal/core/storage/config"
	"github.com/syntrixbase/inkwell/internal/core/storage/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Provider owns the MongoDB connection and the stores built on it.
type Provider struct {
	client      *mongo.Client
	db          *mongo.Database
	records     *recordStore
	tokens      *tokenStore
	checkpoints *checkpointStore
}

// NewProvider connects, pings and prepares collections and indexes.
func NewProvider(ctx context.Context, cfg config.MongoConfig) (*Provider, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI)
	if clientOpts.ConnectTimeout == nil && cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	p := newProvider(client, client.Database(cfg.DatabaseName), cfg)
	if err := p.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return p, nil
}

func newProvider(client *mongo.Client, db *mongo.Database, cfg config.MongoConfig) *Provider {
	return &Provider{
		client:      client,
		db:          db,
		records:     &recordStore{coll: db.Collection(cfg.RecordsCollection)},
		tokens:      &tokenStore{coll: db.Collection(cfg.TokensCollection)},
		checkpoints: &checkpointStore{coll: db.Collection(cfg.CheckpointsCollection)},
	}
}

// EnsureIndexes creates TTL indexes and enables pre-images on the record collection.
func (p *Provider) EnsureIndexes(ctx context.Context) error {
	if err := p.tokens.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure token indexes: %w", err)
	}
	if err := p.records.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure record indexes: %w", err)
	}
	p.enablePreImages(ctx)
	return nil
}

// enablePreImages turns on changeStreamPreAndPostImages so deletes carry an OldImage.
// Servers older than 6.0 reject the command; deletes then carry keys only.
func (p *Provider) enablePreImages(ctx context.Context) {
	name := p.records.coll.Name()
	if err := p.db.CreateCollection(ctx, name); err != nil {
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Name != "NamespaceExists" {
			slog.Warn("Failed to create record collection", "collection", name, "error", err)
		}
	}
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
	}
	if err := p.db.RunCommand(ctx, cmd).Err(); err != nil {
		slog.Warn("Change stream pre-images unavailable", "collection", name, "error", err)
	}
}

// Records returns the record store.
func (p *Provider) Records() types.RecordStore { return p.records }

// Tokens returns the idempotency token store.
func (p *Provider) Tokens() types.TokenStore { return p.tokens }

// Checkpoints returns the checkpoint store.
func (p *Provider) Checkpoints() types.CheckpointStore { return p.checkpoints }

// Close closes the MongoDB connection
func (p *Provider) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}
