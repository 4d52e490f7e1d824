// Package config provides configuration loading and management for the
// lifecycle server.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete lifecycle server configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Policy   PolicyConfig   `yaml:"policy"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	NATS     NATSConfig     `yaml:"nats"`
	// Actor is recorded on events when a caller does not name one.
	Actor string `yaml:"actor"`
}

// DatabaseConfig selects and tunes the backing store
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres"
	Driver string `yaml:"driver"`
	// Path is the SQLite file (default: ~/.lifecycle/lifecycle.db)
	Path string `yaml:"path"`
	// DSN is the Postgres connection string
	DSN string `yaml:"dsn"`
	// MaxTxAttempts bounds retries of a unit that lost a write race
	MaxTxAttempts int `yaml:"max_tx_attempts"`
	// MaxAllocAttempts bounds identifier allocation retries
	MaxAllocAttempts int `yaml:"max_alloc_attempts"`
}

// PolicyConfig toggles the gates layered on top of the transition tables.
// Pointers distinguish "not set in this file" from an explicit false.
type PolicyConfig struct {
	RequireApprovedRequirements *bool `yaml:"require_approved_requirements,omitempty"`
	RequireCompleteTasks        *bool `yaml:"require_complete_tasks_for_validation,omitempty"`
}

// LogConfig configures structured logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// NATSConfig configures post-commit event fan-out
type NATSConfig struct {
	// URL is the NATS server URL (empty = disabled)
	URL string `yaml:"url"`
	// SubjectPrefix prefixes every published subject
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           "sqlite",
			MaxTxAttempts:    5,
			MaxAllocAttempts: 5,
		},
		Policy: PolicyConfig{
			RequireApprovedRequirements: boolPtr(false),
			RequireCompleteTasks:        boolPtr(true),
		},
		Log:  LogConfig{Level: "info"},
		NATS: NATSConfig{SubjectPrefix: "lifecycle"},
	}
}

// RequireApprovedRequirementsEnabled reports the effective policy value.
func (p PolicyConfig) RequireApprovedRequirementsEnabled() bool {
	return p.RequireApprovedRequirements != nil && *p.RequireApprovedRequirements
}

// RequireCompleteTasksEnabled reports the effective policy value.
func (p PolicyConfig) RequireCompleteTasksEnabled() bool {
	return p.RequireCompleteTasks == nil || *p.RequireCompleteTasks
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.MaxTxAttempts < 1 {
		return fmt.Errorf("database.max_tx_attempts must be at least 1")
	}
	if c.Database.MaxAllocAttempts < 1 {
		return fmt.Errorf("database.max_alloc_attempts must be at least 1")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Database
	if other.Database.Driver != "" {
		c.Database.Driver = other.Database.Driver
	}
	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}
	if other.Database.DSN != "" {
		c.Database.DSN = other.Database.DSN
	}
	if other.Database.MaxTxAttempts != 0 {
		c.Database.MaxTxAttempts = other.Database.MaxTxAttempts
	}
	if other.Database.MaxAllocAttempts != 0 {
		c.Database.MaxAllocAttempts = other.Database.MaxAllocAttempts
	}

	// Policy
	if other.Policy.RequireApprovedRequirements != nil {
		c.Policy.RequireApprovedRequirements = boolPtr(*other.Policy.RequireApprovedRequirements)
	}
	if other.Policy.RequireCompleteTasks != nil {
		c.Policy.RequireCompleteTasks = boolPtr(*other.Policy.RequireCompleteTasks)
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = other.NATS.SubjectPrefix
	}

	if other.Actor != "" {
		c.Actor = other.Actor
	}
}

func boolPtr(b bool) *bool { return &b }
