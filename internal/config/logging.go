package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	services "github.com/syntrixbase/inkwell/internal/services/config"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// DefaultRedactKeys are scrubbed from every log record.
var DefaultRedactKeys = []string{"password", "secret", "token", "api_key", "apikey", "authorization", "credential", "payload"}

// LoggingConfig controls the console sink and the rotating file sinks.
type LoggingConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Dir      string         `yaml:"dir"`
	Rotation RotationConfig `yaml:"rotation"`
	Console  OutputConfig   `yaml:"console"`
	File     OutputConfig   `yaml:"file"`

	// RedactKeys are matched case-insensitively as substrings of attribute keys.
	RedactKeys []string `yaml:"redact_keys"`
}

// RotationConfig is handed to lumberjack for the file sinks.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"` // MB
	MaxBackups int  `yaml:"max_backups"`
	MaxAge     int  `yaml:"max_age"` // days
	Compress   bool `yaml:"compress"`
}

// OutputConfig describes one sink. Empty Level or Format inherit the
// top-level value.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

func (o *OutputConfig) inherit(level, format string) {
	if o.Level == "" && o.Format == "" && !o.Enabled {
		o.Enabled = true
	}
	if o.Level == "" {
		o.Level = level
	}
	if o.Format == "" {
		o.Format = format
	}
}

func (o OutputConfig) validate(name string) error {
	if !o.Enabled {
		return nil
	}
	if o.Level != "" && !slices.Contains(logLevels, o.Level) {
		return fmt.Errorf("invalid %s log level: %s", name, o.Level)
	}
	if o.Format != "" && !slices.Contains(logFormats, o.Format) {
		return fmt.Errorf("invalid %s log format: %s", name, o.Format)
	}
	return nil
}

func DefaultLoggingConfig() LoggingConfig {
	out := OutputConfig{Enabled: true, Level: "info", Format: "text"}
	return LoggingConfig{
		Level:      "info",
		Format:     "text",
		Dir:        "logs",
		Rotation:   RotationConfig{MaxSize: 100, MaxBackups: 10, MaxAge: 30, Compress: true},
		Console:    out,
		File:       out,
		RedactKeys: DefaultRedactKeys,
	}
}

func (c *LoggingConfig) ApplyDefaults() {
	def := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = def.Level
	}
	if c.Format == "" {
		c.Format = def.Format
	}
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	if c.Rotation.MaxSize == 0 {
		c.Rotation.MaxSize = def.Rotation.MaxSize
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = def.Rotation.MaxBackups
	}
	if c.Rotation.MaxAge == 0 {
		c.Rotation.MaxAge = def.Rotation.MaxAge
	}
	// Compress is left alone; false is a valid explicit choice.
	c.Console.inherit(c.Level, c.Format)
	c.File.inherit(c.Level, c.Format)
	if len(c.RedactKeys) == 0 {
		c.RedactKeys = DefaultRedactKeys
	}
}

// ApplyEnvOverrides reads INKWELL_LOG_LEVEL, INKWELL_LOG_FORMAT and
// INKWELL_LOG_DIR. Level and format overrides apply to both sinks.
func (c *LoggingConfig) ApplyEnvOverrides() {
	if v := os.Getenv("INKWELL_LOG_LEVEL"); v != "" {
		c.Level = strings.ToLower(v)
		c.Console.Level, c.File.Level = c.Level, c.Level
	}
	if v := os.Getenv("INKWELL_LOG_FORMAT"); v != "" {
		c.Format = strings.ToLower(v)
		c.Console.Format, c.File.Format = c.Format, c.Format
	}
	if v := os.Getenv("INKWELL_LOG_DIR"); v != "" {
		c.Dir = v
	}
}

func (c *LoggingConfig) ResolvePaths(configDir string) {
	c.Dir = resolveDataPath(configDir, c.Dir)
}

func (c *LoggingConfig) Validate(_ services.DeploymentMode) error {
	if !slices.Contains(logLevels, c.Level) {
		return fmt.Errorf("invalid log level: %s (must be %s)", c.Level, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, c.Format) {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Format)
	}
	if c.Dir == "" {
		return fmt.Errorf("log directory cannot be empty")
	}
	if err := c.Console.validate("console"); err != nil {
		return err
	}
	return c.File.validate("file")
}

// resolveDataPath anchors a relative data path next to configDir, so "logs"
// becomes a sibling of "config". Paths starting with ".." stay relative to
// configDir itself.
func resolveDataPath(configDir, p string) string {
	switch {
	case p == "" || filepath.IsAbs(p):
		return p
	case strings.HasPrefix(p, ".."):
		return filepath.Clean(filepath.Join(configDir, p))
	default:
		return filepath.Clean(filepath.Join(filepath.Dir(configDir), p))
	}
}
