package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	pubsub "github.com/syntrixbase/inkwell/internal/core/pubsub/config"
	storage "github.com/syntrixbase/inkwell/internal/core/storage/config"
	gateway "github.com/syntrixbase/inkwell/internal/gateway/config"
	"github.com/syntrixbase/inkwell/internal/idempotency"
	"github.com/syntrixbase/inkwell/internal/puller"
	search "github.com/syntrixbase/inkwell/internal/search/config"
	server "github.com/syntrixbase/inkwell/internal/server"
	services "github.com/syntrixbase/inkwell/internal/services/config"
	"github.com/syntrixbase/inkwell/internal/syncer"
	"github.com/syntrixbase/inkwell/internal/upsert"
)

// DefaultConfigDir is where LoadConfig looks for config.yml.
const DefaultConfigDir = "config"

// Config holds the application configuration
type Config struct {
	Deployment services.DeploymentConfig `yaml:"deployment"`
	Server     server.Config             `yaml:"server"`
	Logging    LoggingConfig             `yaml:"logging"`

	// Services
	Gateway     gateway.GatewayConfig `yaml:"gateway"`
	Idempotency idempotency.Config    `yaml:"idempotency"`
	Syncer      syncer.Config         `yaml:"syncer"`
	Upsert      upsert.Config         `yaml:"upsert"`
	Puller      puller.Config         `yaml:"puller"`

	// Components
	Storage storage.Config `yaml:"storage"`
	PubSub  pubsub.Config  `yaml:"pubsub"`
	Search  search.Config  `yaml:"search"`
}

// Default returns a configuration with every section at its defaults.
func Default() *Config {
	return &Config{
		Deployment:  services.DefaultDeploymentConfig(),
		Server:      server.DefaultConfig(),
		Logging:     DefaultLoggingConfig(),
		Gateway:     gateway.DefaultGatewayConfig(),
		Idempotency: idempotency.DefaultConfig(),
		Syncer:      syncer.DefaultConfig(),
		Upsert:      upsert.DefaultConfig(),
		Puller:      puller.DefaultConfig(),
		Storage:     storage.DefaultConfig(),
		PubSub:      pubsub.DefaultConfig(),
		Search:      search.DefaultConfig(),
	}
}

// LoadConfig loads configuration from files and environment variables
// Order: defaults -> config.yml -> config.local.yml -> ApplyEnvOverrides -> ResolvePaths -> Validate
func LoadConfig(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir
	}

	// 1. Start with default values (so YAML can override them, including bool fields)
	cfg := Default()

	// 2. Load config.yml (overrides defaults)
	loadFile(filepath.Join(configDir, "config.yml"), cfg)

	// 3. Load config.local.yml (overrides config.yml)
	loadFile(filepath.Join(configDir, "config.local.yml"), cfg)

	// 4. Apply configuration lifecycle with the deployment mode known first
	if err := cfg.finalize(configDir); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func (c *Config) finalize(configDir string) error {
	c.Deployment.ApplyDefaults()
	c.Deployment.ApplyEnvOverrides()
	c.Deployment.ResolvePaths(configDir)
	if err := c.Deployment.Validate(); err != nil {
		return err
	}
	mode := c.Deployment.Mode

	// The standalone Badger store lives in the deployment data dir unless
	// storage names its own.
	if c.Storage.Badger.Dir == "" {
		c.Storage.Badger.Dir = c.Deployment.Standalone.DataDir
	}
	c.Storage.Badger.Dir = resolveDataPath(configDir, c.Storage.Badger.Dir)
	if c.Deployment.Standalone.InMemory {
		c.Storage.Badger.InMemory = true
	}

	if err := ApplyServiceConfigs(configDir, mode,
		&c.Server,
		&c.Logging,
		&c.Gateway,
		&c.Idempotency,
		&c.Syncer,
		&c.Upsert,
		&c.Puller,
		&c.Storage,
		&c.PubSub,
		&c.Search,
	); err != nil {
		return err
	}

	// The puller feeds the stream the syncer reads.
	if c.Puller.StreamName != c.Syncer.StreamName {
		return fmt.Errorf("puller.stream_name (%s) must match syncer.stream_name (%s)", c.Puller.StreamName, c.Syncer.StreamName)
	}
	return nil
}

func loadFile(filename string, cfg *Config) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return // File doesn't exist, skip
		}
		log.Printf("Warning: Error reading %s: %v", filename, err)
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("Warning: Error parsing %s: %v", filename, err)
	}
}
