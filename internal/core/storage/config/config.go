package config

import (
	"fmt"
	"os"
	"time"

	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// Config selects and configures the primary record store.
// In standalone mode the Badger backend is always used.
type Config struct {
	Mongo  MongoConfig  `yaml:"mongo"`
	Badger BadgerConfig `yaml:"badger"`
}

type MongoConfig struct {
	URI          string `yaml:"uri"`
	DatabaseName string `yaml:"database_name"`

	RecordsCollection     string `yaml:"records_collection"`
	TokensCollection      string `yaml:"tokens_collection"`
	CheckpointsCollection string `yaml:"checkpoints_collection"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type BadgerConfig struct {
	// Dir defaults to deployment.standalone.data_dir.
	Dir        string        `yaml:"dir"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval"`

	// ChangeLogRetention bounds how far back the sync puller can resume.
	ChangeLogRetention time.Duration `yaml:"change_log_retention"`
}

func DefaultConfig() Config {
	return Config{
		Mongo: MongoConfig{
			URI:                   "mongodb://localhost:27017",
			DatabaseName:          "inkwell",
			RecordsCollection:     "records",
			TokensCollection:      "idempotency_tokens",
			CheckpointsCollection: "sync_checkpoints",
			ConnectTimeout:        10 * time.Second,
		},
		Badger: BadgerConfig{
			GCInterval:         5 * time.Minute,
			ChangeLogRetention: 24 * time.Hour,
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Mongo.URI == "" {
		c.Mongo.URI = defaults.Mongo.URI
	}
	if c.Mongo.DatabaseName == "" {
		c.Mongo.DatabaseName = defaults.Mongo.DatabaseName
	}
	if c.Mongo.RecordsCollection == "" {
		c.Mongo.RecordsCollection = defaults.Mongo.RecordsCollection
	}
	if c.Mongo.TokensCollection == "" {
		c.Mongo.TokensCollection = defaults.Mongo.TokensCollection
	}
	if c.Mongo.CheckpointsCollection == "" {
		c.Mongo.CheckpointsCollection = defaults.Mongo.CheckpointsCollection
	}
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = defaults.Mongo.ConnectTimeout
	}
	if c.Badger.GCInterval == 0 {
		c.Badger.GCInterval = defaults.Badger.GCInterval
	}
	if c.Badger.ChangeLogRetention == 0 {
		c.Badger.ChangeLogRetention = defaults.Badger.ChangeLogRetention
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("MONGO_URI"); val != "" {
		c.Mongo.URI = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Mongo.DatabaseName = val
	}
}

// ResolvePaths resolves relative paths using the given base directory.
// The Badger dir is resolved together with the deployment data dir.
func (c *Config) ResolvePaths(_ string) { _ = c }

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(mode services.DeploymentMode) error {
	if mode.IsDistributed() {
		if c.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required in distributed mode")
		}
		if c.Mongo.DatabaseName == "" {
			return fmt.Errorf("storage.mongo.database_name is required in distributed mode")
		}
	}
	if mode.IsStandalone() && !c.Badger.InMemory && c.Badger.Dir == "" {
		return fmt.Errorf("storage.badger.dir is required unless in_memory is set")
	}
	return nil
}
