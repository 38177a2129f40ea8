package puller

import (
	"fmt"
	"os"
	"time"

	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// Config configures the change feed puller.
type Config struct {
	// StreamName is the subject prefix events are published under.
	StreamName string `yaml:"stream_name"`

	// CheckpointName keys the persisted resume token.
	CheckpointName string `yaml:"checkpoint_name"`

	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	CheckpointEvents   int           `yaml:"checkpoint_events"`

	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxPublishBackoff time.Duration `yaml:"max_publish_backoff"`
}

// DefaultConfig returns the default puller configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:         "INKWELL_CHANGES",
		CheckpointName:     "inkwell-puller",
		CheckpointInterval: time.Second,
		CheckpointEvents:   100,
		ReconnectDelay:     time.Second,
		MaxPublishBackoff:  30 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.StreamName == "" {
		c.StreamName = d.StreamName
	}
	if c.CheckpointName == "" {
		c.CheckpointName = d.CheckpointName
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = d.CheckpointInterval
	}
	if c.CheckpointEvents == 0 {
		c.CheckpointEvents = d.CheckpointEvents
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxPublishBackoff == 0 {
		c.MaxPublishBackoff = d.MaxPublishBackoff
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INKWELL_PULLER_CHECKPOINT_NAME"); val != "" {
		c.CheckpointName = val
	}
}

// ResolvePaths is a no-op.
func (c *Config) ResolvePaths(_ string) { _ = c }

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(_ services.DeploymentMode) error {
	if c.CheckpointEvents <= 0 {
		return fmt.Errorf("puller.checkpoint_events must be positive")
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("puller.checkpoint_interval must be positive")
	}
	return nil
}
