package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// GatewayConfig configures the HTTP API routes.
type GatewayConfig struct {
	// RequestTimeout bounds every API handler.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxBodySize caps request bodies in bytes.
	MaxBodySize int64 `yaml:"max_body_size"`
	// MaxRunItems caps the number of items one run update may carry.
	MaxRunItems int `yaml:"max_run_items"`
	// RunFanOut bounds concurrent publishes for one run update.
	RunFanOut int `yaml:"run_fan_out"`
	// ArtistPrefix is prepended to artist ids to form the record partition key.
	ArtistPrefix string `yaml:"artist_prefix"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		RequestTimeout: 30 * time.Second,
		MaxBodySize:    1 << 20,
		MaxRunItems:    500,
		RunFanOut:      16,
		ArtistPrefix:   "ARTIST#",
	}
}

// ApplyDefaults fills in zero values with defaults.
func (g *GatewayConfig) ApplyDefaults() {
	defaults := DefaultGatewayConfig()
	if g.RequestTimeout == 0 {
		g.RequestTimeout = defaults.RequestTimeout
	}
	if g.MaxBodySize == 0 {
		g.MaxBodySize = defaults.MaxBodySize
	}
	if g.MaxRunItems == 0 {
		g.MaxRunItems = defaults.MaxRunItems
	}
	if g.RunFanOut == 0 {
		g.RunFanOut = defaults.RunFanOut
	}
	if g.ArtistPrefix == "" {
		g.ArtistPrefix = defaults.ArtistPrefix
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (g *GatewayConfig) ApplyEnvOverrides() {
	if val := os.Getenv("INKWELL_GATEWAY_RUN_FAN_OUT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			g.RunFanOut = n
		}
	}
	if val := os.Getenv("INKWELL_GATEWAY_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			g.RequestTimeout = d
		}
	}
}

// ResolvePaths resolves relative paths using the given directory.
// No paths to resolve in gateway config.
func (g *GatewayConfig) ResolvePaths(_ string) { _ = g }

// Validate returns an error if the configuration is invalid.
func (g *GatewayConfig) Validate(_ services.DeploymentMode) error {
	if g.RequestTimeout <= 0 {
		return fmt.Errorf("gateway.request_timeout must be positive, got %s", g.RequestTimeout)
	}
	if g.MaxBodySize <= 0 {
		return fmt.Errorf("gateway.max_body_size must be positive, got %d", g.MaxBodySize)
	}
	if g.MaxRunItems <= 0 {
		return fmt.Errorf("gateway.max_run_items must be positive, got %d", g.MaxRunItems)
	}
	if g.RunFanOut <= 0 {
		return fmt.Errorf("gateway.run_fan_out must be positive, got %d", g.RunFanOut)
	}
	if g.ArtistPrefix == "" {
		return fmt.Errorf("gateway.artist_prefix is required")
	}
	return nil
}
