package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// Config configures the durable queue. Standalone mode uses the in-process
// engine and ignores the NATS section.
type Config struct {
	NATS NATSConfig `yaml:"nats"`

	// Storage is file or memory for JetStream streams.
	Storage string `yaml:"storage"`
	// MaxAge bounds stream retention. 0 keeps messages until acked.
	MaxAge time.Duration `yaml:"max_age"`
	// AckWait is how long the broker waits before redelivering an unacked message.
	AckWait time.Duration `yaml:"ack_wait"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

func DefaultConfig() Config {
	return Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "inkwell",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Storage: "file",
		MaxAge:  7 * 24 * time.Hour,
		AckWait: 30 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.NATS.URL == "" {
		c.NATS.URL = defaults.NATS.URL
	}
	if c.NATS.Name == "" {
		c.NATS.Name = defaults.NATS.Name
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = defaults.NATS.MaxReconnects
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = defaults.NATS.ReconnectWait
	}
	if c.Storage == "" {
		c.Storage = defaults.Storage
	}
	if c.AckWait == 0 {
		c.AckWait = defaults.AckWait
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INKWELL_NATS_URL"); val != "" {
		c.NATS.URL = val
	}
}

// ResolvePaths is a no-op.
func (c *Config) ResolvePaths(_ string) { _ = c }

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(mode services.DeploymentMode) error {
	if mode.IsDistributed() {
		if c.NATS.URL == "" {
			return fmt.Errorf("pubsub.nats.url is required in distributed mode")
		}
		if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
			return fmt.Errorf("pubsub.nats.url must use nats:// or tls://, got %q", c.NATS.URL)
		}
	}
	switch c.Storage {
	case "file", "memory":
	default:
		return fmt.Errorf("pubsub.storage must be file or memory, got %q", c.Storage)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("pubsub.max_age must not be negative")
	}
	return nil
}

// StorageType maps Storage to the stream storage type.
func (c *Config) StorageType() pubsub.StorageType {
	if c.Storage == "memory" {
		return pubsub.MemoryStorage
	}
	return pubsub.FileStorage
}
