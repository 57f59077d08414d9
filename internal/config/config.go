// Package config provides configuration types, defaults, and persistence
// for paladin-plugins.
package config

import (
	"github.com/paladinbio/paladin-plugins/internal/paths"
)

// Config holds all configuration options for paladin-plugins.
type Config struct {
	// CacheDir is the persistent root for cached reference data: one
	// subdirectory per resource group plus one database file per cache store.
	CacheDir string `mapstructure:"cache_dir"`

	// OutputDir is where rendered reports land when a plugin writes to file.
	OutputDir string `mapstructure:"output_dir"`

	// TempPrefix names the per-process temporary directory.
	TempPrefix string `mapstructure:"temp_prefix"`

	// ExpiryDays is the default age threshold for cached external data.
	ExpiryDays int `mapstructure:"expiry_days"`

	// FetchRetries bounds retry attempts for remote downloads.
	FetchRetries int `mapstructure:"fetch_retries"`

	// Flags holds feature flags (stream-stdout, stream-stderr, keep-temp).
	Flags map[string]bool `mapstructure:"flags"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		CacheDir:     "~/.paladin-plugins",
		OutputDir:    ".",
		TempPrefix:   "pp-",
		ExpiryDays:   30,
		FetchRetries: 3,
	}
}

// Resolved returns a copy of the config with home-relative paths expanded.
func (c Config) Resolved() Config {
	out := c
	out.CacheDir = paths.ExpandHome(c.CacheDir)
	out.OutputDir = paths.ExpandHome(c.OutputDir)
	return out
}
