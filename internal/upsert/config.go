package upsert

import (
	"fmt"
	"os"
	"strconv"
	"time"

	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// Config configures the upsert pipeline and its queue consumer.
type Config struct {
	StreamName   string `yaml:"stream_name"`
	ConsumerName string `yaml:"consumer_name"`

	// DeadLetterStream receives messages that can never be applied, on
	// subject "<DeadLetterStream>.<DeadLetterSubject>".
	DeadLetterStream  string `yaml:"dead_letter_stream"`
	DeadLetterSubject string `yaml:"dead_letter_subject"`

	// EntityPrefix is prepended to entityId to form the partition key.
	EntityPrefix string `yaml:"entity_prefix"`

	Workers        int `yaml:"workers"`
	ChannelBufSize int `yaml:"channel_buf_size"`

	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	MessageTimeout  time.Duration `yaml:"message_timeout"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:        "INKWELL_UPSERTS",
		ConsumerName:      "inkwell-upsert",
		DeadLetterStream:  "INKWELL_DLQ",
		DeadLetterSubject: "upserts",
		EntityPrefix:      "ARTIST#",
		Workers:           8,
		ChannelBufSize:    100,
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		MessageTimeout:    10 * time.Second,
		DrainTimeout:      5 * time.Second,
		ShutdownTimeout:   30 * time.Second,
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
	if c.DeadLetterStream == "" {
		c.DeadLetterStream = d.DeadLetterStream
	}
	if c.DeadLetterSubject == "" {
		c.DeadLetterSubject = d.DeadLetterSubject
	}
	if c.EntityPrefix == "" {
		c.EntityPrefix = d.EntityPrefix
	}
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.ChannelBufSize == 0 {
		c.ChannelBufSize = d.ChannelBufSize
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
	if c.MessageTimeout == 0 {
		c.MessageTimeout = d.MessageTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INKWELL_UPSERT_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Workers = n
		}
	}
	if val := os.Getenv("INKWELL_UPSERT_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxAttempts = n
		}
	}
}

// ResolvePaths is a no-op.
func (c *Config) ResolvePaths(_ string) { _ = c }

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(_ services.DeploymentMode) error {
	if c.Workers <= 0 {
		return fmt.Errorf("upsert.workers must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("upsert.max_attempts must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("upsert.max_backoff (%s) is below initial_backoff (%s)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.StreamName == c.DeadLetterStream {
		return fmt.Errorf("upsert.dead_letter_stream must differ from stream_name")
	}
	return nil
}
