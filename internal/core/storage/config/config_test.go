package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	services "github.com/syntrixbase/inkwell/internal/services/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "inkwell", cfg.Mongo.DatabaseName)
	assert.Equal(t, "records", cfg.Mongo.RecordsCollection)
	assert.Equal(t, "idempotency_tokens", cfg.Mongo.TokensCollection)
	assert.Equal(t, "sync_checkpoints", cfg.Mongo.CheckpointsCollection)
	assert.Equal(t, 10*time.Second, cfg.Mongo.ConnectTimeout)

	assert.Equal(t, 5*time.Minute, cfg.Badger.GCInterval)
	assert.Equal(t, 24*time.Hour, cfg.Badger.ChangeLogRetention)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name    string
		initial Config
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "empty config gets all defaults",
			initial: Config{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultConfig(), *cfg)
			},
		},
		{
			name: "custom values preserved",
			initial: Config{
				Mongo:  MongoConfig{URI: "mongodb://custom:27017", RecordsCollection: "artists"},
				Badger: BadgerConfig{GCInterval: time.Minute},
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mongodb://custom:27017", cfg.Mongo.URI)
				assert.Equal(t, "artists", cfg.Mongo.RecordsCollection)
				assert.Equal(t, "inkwell", cfg.Mongo.DatabaseName)
				assert.Equal(t, time.Minute, cfg.Badger.GCInterval)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			cfg.ApplyDefaults()
			tt.check(t, &cfg)
		})
	}
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://env:27017")
	t.Setenv("DB_NAME", "env_db")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "mongodb://env:27017", cfg.Mongo.URI)
	assert.Equal(t, "env_db", cfg.Mongo.DatabaseName)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate(services.ModeDistributed))

	cfg.Mongo.URI = ""
	err := cfg.Validate(services.ModeDistributed)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "storage.mongo.uri")

	// standalone ignores mongo but needs a badger location
	err = cfg.Validate(services.ModeStandalone)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "storage.badger.dir")

	cfg.Badger.InMemory = true
	assert.NoError(t, cfg.Validate(services.ModeStandalone))
}
