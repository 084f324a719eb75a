package config

import (
	"time"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Serial  SerialConfig  `yaml:"serial"`
	Bringup BringupConfig `yaml:"bringup"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SerialConfig holds settings for the shared serial bus the storage
// peripheral is attached to. An empty Port selects the built-in
// simulated peripheral.
type SerialConfig struct {
	Port        string `yaml:"port"`
	InitSpeedHz int    `yaml:"init_speed_hz"`
	RunSpeedHz  int    `yaml:"run_speed_hz"`
}

// BringupConfig holds settings for the staged bring-up pipeline.
type BringupConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	VolumeIndex int           `yaml:"volume_index"`
	Filename    string        `yaml:"filename"` // empty = random 8.3 name
}

// SessionConfig holds settings for the steady-state logging loop.
type SessionConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	FlushEvery   uint64        `yaml:"flush_every"`
}
