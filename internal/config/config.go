package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aleister1102/codetriage/internal/common"

	"gopkg.in/yaml.v3"
)

// GlobalConfig contains all configuration sections for the application
type GlobalConfig struct {
	StorageConfig         StorageConfig         `json:"storage_config,omitempty" yaml:"storage_config,omitempty"`
	IngestionConfig       IngestionConfig       `json:"ingestion_config,omitempty" yaml:"ingestion_config,omitempty"`
	LogConfig             LogConfig             `json:"log_config,omitempty" yaml:"log_config,omitempty"`
	ResourceLimiterConfig ResourceLimiterConfig `json:"resource_limiter_config,omitempty" yaml:"resource_limiter_config,omitempty"`
}

// NewDefaultGlobalConfig creates a new GlobalConfig with default values
func NewDefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		StorageConfig:         NewDefaultStorageConfig(),
		IngestionConfig:       NewDefaultIngestionConfig(),
		LogConfig:             NewDefaultLogConfig(),
		ResourceLimiterConfig: NewDefaultResourceLimiterConfig(),
	}
}

// LoadGlobalConfig loads the configuration from a file or default locations.
// It determines the config file path using GetConfigPath and supports both
// YAML and JSON formats. When no file is found the defaults are returned.
func LoadGlobalConfig(providedPath string) (*GlobalConfig, error) {
	cfg := NewDefaultGlobalConfig()

	filePath := GetConfigPath(providedPath)
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, common.WrapError(err, "failed to read config file "+filePath)
	}

	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, common.WrapError(err, "failed to parse YAML config "+filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, common.WrapError(err, "failed to parse JSON config "+filePath)
		}
	default:
		// Unknown extension, try YAML first then JSON.
		if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
			if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
				return nil, common.WrapError(yamlErr, "failed to parse config "+filePath)
			}
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, common.WrapError(err, "config validation failed for "+filePath)
	}

	return cfg, nil
}
