package vio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the service configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Validate required fields
	if config.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	if len(config.Cameras) == 0 {
		return nil, fmt.Errorf("at least one camera must be defined")
	}

	// Validate camera configs
	seen := make(map[string]bool, len(config.Cameras))
	for i, cc := range config.Cameras {
		if cc.ID == "" {
			return nil, fmt.Errorf("camera[%d].id is required", i)
		}
		if cc.Topic == "" {
			return nil, fmt.Errorf("camera[%d].topic is required for %s", i, cc.ID)
		}
		if seen[cc.ID] {
			return nil, fmt.Errorf("duplicate camera id %s", cc.ID)
		}
		seen[cc.ID] = true
	}

	if config.Ransac.InlierThreshold < 0 {
		return nil, fmt.Errorf("ransac.inlierThreshold must not be negative")
	}
	switch config.Ransac.Metric {
	case "", "sampson", "algebraic":
	default:
		return nil, fmt.Errorf("ransac.metric must be \"sampson\" or \"algebraic\", got %q", config.Ransac.Metric)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// RansacConfig converts the file settings to an estimator config, filling
// unset fields from the defaults. The iteration floor is applied by NewRansac.
func (c *Config) RansacConfig() RansacConfig {
	cfg := DefaultRansacConfig()
	if c.Ransac.Iterations > 0 {
		cfg.Iterations = c.Ransac.Iterations
	}
	if c.Ransac.InlierThreshold > 0 {
		cfg.InlierThreshold = c.Ransac.InlierThreshold
	}
	cfg.UseSampson = c.Ransac.Metric != "algebraic"
	return cfg
}
