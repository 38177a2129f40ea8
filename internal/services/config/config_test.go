package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeploymentMode(t *testing.T) {
	for mode, want := range map[DeploymentMode][2]bool{
		ModeStandalone:  {true, false},
		ModeDistributed: {false, true},
		"":              {false, true},
		"other":         {false, false},
	} {
		assert.Equal(t, want[0], mode.IsStandalone(), mode)
		assert.Equal(t, want[1], mode.IsDistributed(), mode)
	}
}

func TestDeploymentConfig_ApplyDefaults(t *testing.T) {
	var cfg DeploymentConfig
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultDeploymentConfig(), cfg)

	cfg = DeploymentConfig{Mode: ModeStandalone, Standalone: StandaloneConfig{DataDir: "/srv/inkwell"}}
	cfg.ApplyDefaults()
	assert.Equal(t, ModeStandalone, cfg.Mode)
	assert.Equal(t, "/srv/inkwell", cfg.Standalone.DataDir)
}

func TestDeploymentConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("INKWELL_DEPLOYMENT_MODE", " Standalone ")
	t.Setenv("INKWELL_DATA_DIR", "/custom/path")
	t.Setenv("INKWELL_IN_MEMORY", "1")

	cfg := DefaultDeploymentConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, ModeStandalone, cfg.Mode)
	assert.Equal(t, "/custom/path", cfg.Standalone.DataDir)
	assert.True(t, cfg.Standalone.InMemory)
}

func TestDeploymentConfig_InMemoryIgnoresGarbage(t *testing.T) {
	t.Setenv("INKWELL_IN_MEMORY", "sometimes")

	cfg := DeploymentConfig{Standalone: StandaloneConfig{InMemory: true}}
	cfg.ApplyEnvOverrides()
	assert.True(t, cfg.Standalone.InMemory)
}

func TestDeploymentConfig_Validate(t *testing.T) {
	cfg := DefaultDeploymentConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Mode = "clustered"
	assert.ErrorContains(t, cfg.Validate(), "deployment.mode")
}
