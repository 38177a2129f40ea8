package secrets

import (
	"fmt"
	"os"
	"path/filepath"

	services "github.com/syntrixbase/inkwell/internal/services/config"
)

const (
	SourceEnv    = "env"
	SourceFile   = "file"
	SourceStatic = "static"
)

// Config selects where secrets come from.
type Config struct {
	Source    string            `yaml:"source"`     // env, file or static
	EnvPrefix string            `yaml:"env_prefix"` // env source only
	Dir       string            `yaml:"dir"`        // file source only
	Static    map[string]string `yaml:"static"`     // static source only, never for production
}

func DefaultConfig() Config {
	return Config{
		Source:    SourceEnv,
		EnvPrefix: "INKWELL_SECRET_",
		Dir:       "secrets",
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = d.EnvPrefix
	}
	if c.Dir == "" {
		c.Dir = d.Dir
	}
}

func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("INKWELL_SECRETS_SOURCE"); v != "" {
		c.Source = v
	}
	if v := os.Getenv("INKWELL_SECRETS_DIR"); v != "" {
		c.Dir = v
	}
}

func (c *Config) ResolvePaths(configDir string) {
	if c.Dir != "" && !filepath.IsAbs(c.Dir) {
		c.Dir = filepath.Clean(filepath.Join(filepath.Dir(configDir), c.Dir))
	}
}

func (c *Config) Validate(mode services.DeploymentMode) error {
	switch c.Source {
	case SourceEnv, SourceFile:
		return nil
	case SourceStatic:
		if mode.IsDistributed() {
			return fmt.Errorf("secrets.source static is only allowed in standalone mode")
		}
		return nil
	default:
		return fmt.Errorf("secrets.source must be env, file or static, got %q", c.Source)
	}
}

// NewProvider builds the provider selected by cfg.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Source {
	case SourceEnv, "":
		return NewEnvProvider(cfg.EnvPrefix), nil
	case SourceFile:
		return NewFileProvider(cfg.Dir), nil
	case SourceStatic:
		return NewStaticProvider(cfg.Static), nil
	default:
		return nil, fmt.Errorf("unknown secrets source %q", cfg.Source)
	}
}
