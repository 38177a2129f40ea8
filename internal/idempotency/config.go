package idempotency

import (
	"fmt"
	"os"
	"time"

	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// DefaultTTL is how long a key stays claimed after its first submission.
const DefaultTTL = 5 * time.Minute

// DefaultHeader is the request header carrying the client key.
const DefaultHeader = "Idempotency-Key"

// Config configures the idempotency gate.
type Config struct {
	TTL    time.Duration `yaml:"ttl"`
	Header string        `yaml:"header"`
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		TTL:    DefaultTTL,
		Header: DefaultHeader,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.TTL == 0 {
		c.TTL = defaults.TTL
	}
	if c.Header == "" {
		c.Header = defaults.Header
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("INKWELL_IDEMPOTENCY_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.TTL = d
		}
	}
}

// ResolvePaths is a no-op.
func (c *Config) ResolvePaths(_ string) { _ = c }

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate(_ services.DeploymentMode) error {
	if c.TTL <= 0 {
		return fmt.Errorf("idempotency.ttl must be positive, got %s", c.TTL)
	}
	if c.Header == "" {
		return fmt.Errorf("idempotency.header is required")
	}
	return nil
}
