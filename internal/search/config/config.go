package config

import (
	"fmt"
	"os"
	"time"

	"github.com/syntrixbase/inkwell/internal/secrets"
	services "github.com/syntrixbase/inkwell/internal/services/config"
)

const (
	BackendWeaviate = "weaviate"
	BackendMemory   = "memory"
)

// Config configures the search index, its credentials and the breaker that
// guards reads.
type Config struct {
	// Backend is weaviate or memory. Standalone mode always uses memory.
	Backend  string         `yaml:"backend"`
	Weaviate WeaviateConfig `yaml:"weaviate"`

	// SecretRef names the credentials secret for the index client.
	SecretRef string         `yaml:"secret_ref"`
	Secrets   secrets.Config `yaml:"secrets"`

	Breaker BreakerConfig `yaml:"breaker"`
}

type WeaviateConfig struct {
	Host      string        `yaml:"host"`
	Scheme    string        `yaml:"scheme"`
	ClassName string        `yaml:"class_name"`
	Timeout   time.Duration `yaml:"timeout"`
}

type BreakerConfig struct {
	WindowSize   int           `yaml:"window_size"`
	MinRequests  int           `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Backend: BackendWeaviate,
		Weaviate: WeaviateConfig{
			Host:      "localhost:8081",
			Scheme:    "http",
			ClassName: "Artist",
			Timeout:   5 * time.Second,
		},
		SecretRef: "search/weaviate",
		Secrets:   secrets.DefaultConfig(),
		Breaker: BreakerConfig{
			WindowSize:   10,
			MinRequests:  2,
			FailureRatio: 0.5,
			CallTimeout:  3 * time.Second,
			ResetTimeout: 30 * time.Second,
		},
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Weaviate.Host == "" {
		c.Weaviate.Host = d.Weaviate.Host
	}
	if c.Weaviate.Scheme == "" {
		c.Weaviate.Scheme = d.Weaviate.Scheme
	}
	if c.Weaviate.ClassName == "" {
		c.Weaviate.ClassName = d.Weaviate.ClassName
	}
	if c.Weaviate.Timeout == 0 {
		c.Weaviate.Timeout = d.Weaviate.Timeout
	}
	if c.SecretRef == "" {
		c.SecretRef = d.SecretRef
	}
	c.Secrets.ApplyDefaults()
	if c.Breaker.WindowSize == 0 {
		c.Breaker.WindowSize = d.Breaker.WindowSize
	}
	if c.Breaker.MinRequests == 0 {
		c.Breaker.MinRequests = d.Breaker.MinRequests
	}
	if c.Breaker.FailureRatio == 0 {
		c.Breaker.FailureRatio = d.Breaker.FailureRatio
	}
	if c.Breaker.CallTimeout == 0 {
		c.Breaker.CallTimeout = d.Breaker.CallTimeout
	}
	if c.Breaker.ResetTimeout == 0 {
		c.Breaker.ResetTimeout = d.Breaker.ResetTimeout
	}
}

func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("INKWELL_SEARCH_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("INKWELL_WEAVIATE_HOST"); v != "" {
		c.Weaviate.Host = v
	}
	if v := os.Getenv("INKWELL_WEAVIATE_SCHEME"); v != "" {
		c.Weaviate.Scheme = v
	}
	c.Secrets.ApplyEnvOverrides()
}

func (c *Config) ResolvePaths(configDir string) {
	c.Secrets.ResolvePaths(configDir)
}

func (c *Config) Validate(mode services.DeploymentMode) error {
	switch c.Backend {
	case BackendWeaviate, BackendMemory:
	default:
		return fmt.Errorf("search.backend must be weaviate or memory, got %q", c.Backend)
	}
	if mode.IsDistributed() && c.Backend == BackendWeaviate {
		if c.Weaviate.Host == "" {
			return fmt.Errorf("search.weaviate.host is required")
		}
		if c.Weaviate.Scheme != "http" && c.Weaviate.Scheme != "https" {
			return fmt.Errorf("search.weaviate.scheme must be http or https, got %q", c.Weaviate.Scheme)
		}
		if c.SecretRef == "" {
			return fmt.Errorf("search.secret_ref is required")
		}
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("search.breaker.failure_ratio must be in (0, 1], got %v", c.Breaker.FailureRatio)
	}
	if c.Breaker.MinRequests > c.Breaker.WindowSize {
		return fmt.Errorf("search.breaker.min_requests (%d) exceeds window_size (%d)", c.Breaker.MinRequests, c.Breaker.WindowSize)
	}
	return c.Secrets.Validate(mode)
}
