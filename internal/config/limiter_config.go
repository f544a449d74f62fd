package config

import "time"

// ResourceLimiterConfig holds configuration for the ingestion resource guard
type ResourceLimiterConfig struct {
	MaxMemoryMB        int64         `json:"max_memory_mb,omitempty" yaml:"max_memory_mb,omitempty"`
	SystemMemThreshold float64       `json:"system_mem_threshold,omitempty" yaml:"system_mem_threshold,omitempty"`
	CheckInterval      time.Duration `json:"check_interval,omitempty" yaml:"check_interval,omitempty"`
	Enabled            bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// NewDefaultResourceLimiterConfig returns default configuration
func NewDefaultResourceLimiterConfig() ResourceLimiterConfig {
	return ResourceLimiterConfig{
		MaxMemoryMB:        1024,
		SystemMemThreshold: 0.9,
		CheckInterval:      10 * time.Second,
		Enabled:            true,
	}
}
