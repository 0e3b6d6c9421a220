// Package config loads the optional user settings file. Every knob has a
// default matching the stock hook behavior; a missing or malformed settings
// file means defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the hook's tunable settings.
type Config struct {
	// StatsDir is where all produced files live (daily stats, time series,
	// debug log, lock file, archive).
	StatsDir string `yaml:"stats_dir"`

	// PricingFile is the user price-override JSON file.
	PricingFile string `yaml:"pricing_file"`

	// DisableArchive turns off the SQLite completed-request archive.
	DisableArchive bool `yaml:"disable_archive"`

	// RetentionDays is how long the janitor keeps daily stats files and
	// archive rows.
	RetentionDays int `yaml:"retention_days"`

	// JanitorEvery is the sweep period when the janitor runs as a service,
	// in time.ParseDuration form ("24h", "90m").
	JanitorEvery string `yaml:"janitor_every"`

	// JanitorInterval is JanitorEvery parsed, filled by ApplyDefaults.
	JanitorInterval time.Duration `yaml:"-"`
}

// settingsPath returns the settings file location.
func settingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".token-stats.yaml"), nil
}

// Load reads the user settings file and fills in defaults. A missing file is
// not an error; a malformed one is reported so the caller can log it, with
// defaults returned alongside.
func Load() (*Config, error) {
	path, err := settingsPath()
	if err != nil {
		cfg := &Config{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom reads settings from an explicit path. Used directly by tests.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		cfg.ApplyDefaults()
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		fresh := &Config{}
		fresh.ApplyDefaults()
		return fresh, fmt.Errorf("parse settings: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.StatsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.StatsDir = filepath.Join(home, ".claude", "stats")
	}
	if c.PricingFile == "" {
		c.PricingFile = filepath.Join(c.StatsDir, "pricing.json")
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.JanitorEvery != "" {
		if d, err := time.ParseDuration(c.JanitorEvery); err == nil && d > 0 {
			c.JanitorInterval = d
		}
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = 24 * time.Hour
	}
}

// LockPath returns the advisory lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.StatsDir, ".stats.lock")
}

// ArchivePath returns the SQLite archive location.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.StatsDir, "archive.db")
}
