package config

import (
	services "github.com/syntrixbase/inkwell/internal/services/config"
)

// ServiceConfig is the lifecycle every config section goes through after
// the YAML files are merged.
type ServiceConfig interface {
	ApplyDefaults()
	ApplyEnvOverrides()
	// ResolvePaths makes relative paths absolute against configDir.
	ResolvePaths(configDir string)
	// Validate may reject settings that only make sense in one mode.
	Validate(mode services.DeploymentMode) error
}

// ApplyServiceConfigs runs defaults, env overrides, path resolution and
// validation on each section in turn, stopping at the first invalid one.
func ApplyServiceConfigs(configDir string, mode services.DeploymentMode, sections ...ServiceConfig) error {
	for _, s := range sections {
		s.ApplyDefaults()
		s.ApplyEnvOverrides()
		s.ResolvePaths(configDir)
		if err := s.Validate(mode); err != nil {
			return err
		}
	}
	return nil
}
