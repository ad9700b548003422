// SPDX-License-Identifier: MIT

// Package config loads daemon configuration from an optional YAML file with
// environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig declares one backend instance to register at startup.
type BackendConfig struct {
	Name    string            `yaml:"name"`
	Driver  string            `yaml:"driver"`
	Options map[string]string `yaml:"options"`
}

// Config is the full daemon configuration.
type Config struct {
	Listen      string `yaml:"listen"`
	DataDir     string `yaml:"data_dir"`
	LogLevel    string `yaml:"log_level"`
	CatalogPath string `yaml:"catalog_path"` // empty keeps the catalog in memory

	// GuideDays pins the guide window; 0 derives it from the channel count.
	GuideDays       int           `yaml:"guide_days"`
	RecordingTTL    time.Duration `yaml:"recording_ttl"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RefreshMinGap   time.Duration `yaml:"refresh_min_gap"`

	Backends []BackendConfig `yaml:"backends"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Listen:          ":8085",
		DataDir:         "/var/lib/tunerhub",
		LogLevel:        "info",
		RecordingTTL:    5 * time.Minute,
		RefreshInterval: 12 * time.Hour,
		RefreshMinGap:   time.Minute,
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays TUNERHUB_* variables onto the config. Environment wins
// over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TUNERHUB_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("TUNERHUB_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TUNERHUB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TUNERHUB_CATALOG_PATH"); v != "" {
		c.CatalogPath = v
	}
	if v := os.Getenv("TUNERHUB_GUIDE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GuideDays = n
		}
	}
	if v := os.Getenv("TUNERHUB_RECORDING_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RecordingTTL = d
		}
	}
	if v := os.Getenv("TUNERHUB_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RefreshInterval = d
		}
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is empty")
	}
	if c.GuideDays < 0 || c.GuideDays > 14 {
		return fmt.Errorf("config: guide_days %d out of range [0, 14]", c.GuideDays)
	}
	if c.RecordingTTL <= 0 {
		return fmt.Errorf("config: recording_ttl must be positive")
	}
	seen := map[string]struct{}{}
	for _, be := range c.Backends {
		if be.Name == "" {
			return fmt.Errorf("config: backend with empty name")
		}
		if be.Driver == "" {
			return fmt.Errorf("config: backend %q has no driver", be.Name)
		}
		if _, dup := seen[be.Name]; dup {
			return fmt.Errorf("config: duplicate backend name %q", be.Name)
		}
		seen[be.Name] = struct{}{}
	}
	return nil
}
