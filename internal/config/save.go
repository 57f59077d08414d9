package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/paladinbio/paladin-plugins/internal/log"
)

const configHeader = `# paladin-plugins configuration
#
# cache_dir:     persistent root for cached reference data and cache databases
# output_dir:    destination for reports written to file
# temp_prefix:   prefix for the per-run temporary directory
# expiry_days:   default age threshold before cached external data is refreshed
# fetch_retries: maximum attempts for a remote download before giving up
#
# flags:
#   stream-stdout: true   # bypass the stdout buffer, print immediately
#   stream-stderr: true   # bypass the stderr buffer, print immediately
#   keep-temp: true       # keep the temporary directory after the run
`

// DefaultConfigTemplate renders the default configuration as commented YAML.
func DefaultConfigTemplate() string {
	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	type yamlConfig struct {
		CacheDir     string `yaml:"cache_dir"`
		OutputDir    string `yaml:"output_dir"`
		TempPrefix   string `yaml:"temp_prefix"`
		ExpiryDays   int    `yaml:"expiry_days"`
		FetchRetries int    `yaml:"fetch_retries"`
	}
	d := Defaults()
	_ = encoder.Encode(yamlConfig{
		CacheDir:     d.CacheDir,
		OutputDir:    d.OutputDir,
		TempPrefix:   d.TempPrefix,
		ExpiryDays:   d.ExpiryDays,
		FetchRetries: d.FetchRetries,
	})
	_ = encoder.Close()
	return buf.String()
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
