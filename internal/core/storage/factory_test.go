package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/inkwell/internal/core/storage/config"
	services "github.com/syntrixbase/inkwell/internal/services/config"
)

func TestNewFactory_Standalone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Badger.InMemory = true

	f, err := NewFactory(context.Background(), services.ModeStandalone, cfg)
	require.NoError(t, err)

	assert.NotNil(t, f.Records())
	assert.NotNil(t, f.Tokens())
	assert.NotNil(t, f.Checkpoints())

	require.NoError(t, f.Close())
	// second close is a no-op
	require.NoError(t, f.Close())
}

func TestNewFactory_DistributedUsesMongo(t *testing.T) {
	orig := newMongoProvider
	defer func() { newMongoProvider = orig }()

	var gotURI string
	newMongoProvider = func(ctx context.Context, cfg config.MongoConfig) (Provider, error) {
		gotURI = cfg.URI
		return nil, errors.New("unreachable")
	}

	cfg := config.DefaultConfig()
	cfg.Mongo.URI = "mongodb://db:27017"
	_, err := NewFactory(context.Background(), services.ModeDistributed, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
	assert.Equal(t, "mongodb://db:27017", gotURI)
}

func TestNewFactory_UnknownMode(t *testing.T) {
	_, err := NewFactory(context.Background(), services.DeploymentMode("cluster"), config.DefaultConfig())
	assert.Error(t, err)
}
