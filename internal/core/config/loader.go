package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills in zero-valued fields with the defaults the
// datalogger was designed around.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Serial.InitSpeedHz == 0 {
		c.Serial.InitSpeedHz = 400_000
	}
	if c.Serial.RunSpeedHz == 0 {
		c.Serial.RunSpeedHz = 2_000_000
	}
	if c.Bringup.MaxAttempts == 0 {
		c.Bringup.MaxAttempts = 4
	}
	if c.Bringup.RetryDelay == 0 {
		c.Bringup.RetryDelay = 500 * time.Millisecond
	}
	if c.Session.TickInterval == 0 {
		c.Session.TickInterval = time.Second
	}
	if c.Session.FlushEvery == 0 {
		c.Session.FlushEvery = 10
	}
}
