// Package ratelimit provides per-client rate limiting for the HTTP API.
package ratelimit

import (
	"time"
)

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Allow reports whether a request from key may proceed now.
	Allow(key string) bool

	// Reset forgets the state for key.
	Reset(key string)
}

// Config holds the configuration for rate limiting.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Requests is the sustained number of requests allowed per Window.
	Requests int `yaml:"requests"`

	Window time.Duration `yaml:"window"`

	// Burst is how many requests may arrive at once. Defaults to Requests.
	Burst int `yaml:"burst"`
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Requests: 100,
		Window:   time.Minute,
	}
}
