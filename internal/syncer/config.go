package syncer

import (
	"fmt"
	"os"
	"strconv"
	"time"

	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// Config configures the change-capture sync worker.
type Config struct {
	// StreamName is the change stream; the worker filters on "<StreamName>.>".
	StreamName   string `yaml:"stream_name"`
	ConsumerName string `yaml:"consumer_name"`

	// TrackedPrefix selects which partition keys are indexed.
	TrackedPrefix string `yaml:"tracked_prefix"`

	BatchSize   int           `yaml:"batch_size"`
	BatchWindow time.Duration `yaml:"batch_window"`
	Concurrency int           `yaml:"concurrency"`

	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// EventTimeout bounds a single index call.
	EventTimeout time.Duration `yaml:"event_timeout"`
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:     "INKWELL_CHANGES",
		ConsumerName:   "inkwell-syncer",
		TrackedPrefix:  "ARTIST#",
		BatchSize:      50,
		BatchWindow:    200 * time.Millisecond,
		Concurrency:    8,
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		EventTimeout:   10 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.StreamName == "" {
		c.StreamName = d.StreamName
	}
	if c.ConsumerName == "" {
		c.ConsumerName = d.ConsumerName
	}
	if c.TrackedPrefix == "" {
		c.TrackedPrefix = d.TrackedPrefix
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchWindow == 0 {
		c.BatchWindow = d.BatchWindow
	}
	if c.Concurrency == 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.EventTimeout == 0 {
		c.EventTimeout = d.EventTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INKWELL_SYNCER_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Concurrency = n
		}
	}
	if val := os.Getenv("INKWELL_SYNCER_BATCH_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.BatchSize = n
		}
	}
}

// ResolvePaths is a no-op.
func (c *Config) ResolvePaths(_ string) { _ = c }

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(_ services.DeploymentMode) error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("syncer.batch_size must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("syncer.concurrency must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("syncer.max_attempts must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("syncer.max_backoff (%s) is below initial_backoff (%s)", c.MaxBackoff, c.InitialBackoff)
	}
	return nil
}
