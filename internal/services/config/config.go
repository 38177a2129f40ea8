// Package config holds the deployment mode shared by every config section.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DeploymentMode picks the backing stack.
type DeploymentMode string

const (
	// ModeDistributed runs on MongoDB, NATS JetStream and Weaviate. It is
	// the zero-value default.
	ModeDistributed DeploymentMode = "distributed"
	// ModeStandalone runs every role in one process on Badger, the
	// in-memory queue and the in-memory index.
	ModeStandalone DeploymentMode = "standalone"
)

func (m DeploymentMode) IsStandalone() bool { return m == ModeStandalone }

func (m DeploymentMode) IsDistributed() bool { return m == "" || m == ModeDistributed }

type DeploymentConfig struct {
	Mode       DeploymentMode   `yaml:"mode"`
	Standalone StandaloneConfig `yaml:"standalone"`
}

type StandaloneConfig struct {
	DataDir string `yaml:"data_dir"`
	// InMemory keeps all standalone state in memory; nothing survives a restart.
	InMemory bool `yaml:"in_memory"`
}

func DefaultDeploymentConfig() DeploymentConfig {
	return DeploymentConfig{
		Mode:       ModeDistributed,
		Standalone: StandaloneConfig{DataDir: "data/badger"},
	}
}

func (c *DeploymentConfig) ApplyDefaults() {
	def := DefaultDeploymentConfig()
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Standalone.DataDir == "" {
		c.Standalone.DataDir = def.Standalone.DataDir
	}
}

// ApplyEnvOverrides reads INKWELL_DEPLOYMENT_MODE, INKWELL_DATA_DIR and
// INKWELL_IN_MEMORY. Unparseable booleans are ignored.
func (c *DeploymentConfig) ApplyEnvOverrides() {
	if v := os.Getenv("INKWELL_DEPLOYMENT_MODE"); v != "" {
		c.Mode = DeploymentMode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("INKWELL_DATA_DIR"); v != "" {
		c.Standalone.DataDir = v
	}
	if v := os.Getenv("INKWELL_IN_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Standalone.InMemory = b
		}
	}
}

// ResolvePaths does nothing: the data dir is resolved by the storage section.
func (c *DeploymentConfig) ResolvePaths(string) {}

func (c *DeploymentConfig) Validate() error {
	switch c.Mode {
	case "", ModeStandalone, ModeDistributed:
		return nil
	}
	return fmt.Errorf("deployment.mode must be %q or %q, got %q", ModeStandalone, ModeDistributed, c.Mode)
}
