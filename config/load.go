package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/errors"
)

// envPrefix namespaces the environment overrides: GEOBUS_BUS_URL,
// GEOBUS_BUS_TOKEN, GEOBUS_BUS_CREDS_FILE, GEOBUS_STREAM_NAME,
// GEOBUS_STREAM_MAX_AGE, GEOBUS_CODEC_PRECISION, GEOBUS_METRICS_PORT,
// GEOBUS_STORAGE_BUCKET.
const envPrefix = "GEOBUS"

// Load reads one configuration file over the defaults, applies the
// environment overrides and validates the result. The decoder follows the
// extension: .json, .yaml or .yml.
func Load(path string) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read "+path)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := validateJSONDepth(data); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "check "+path)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse "+path)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse "+path)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the file when a path is given, otherwise starts
// from the defaults. Environment overrides and validation apply either
// way.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration next to where Load would read it:
// indented JSON or YAML by extension, owner-only permissions.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "config", "SaveToFile", "marshal")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.WrapInvalid(err, "config", "SaveToFile", "write "+path)
	}
	return nil
}

// applyEnvOverrides lays the GEOBUS_* environment variables over the
// loaded configuration. Overrides cover the values that differ between
// deployments of the same config file: connection, stream identity,
// precision, metrics port, storage bucket.
func applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		suffix string
		apply  func(string) error
	}{
		{"BUS_URL", func(v string) error { cfg.Bus.URL = v; return nil }},
		{"BUS_TOKEN", func(v string) error { cfg.Bus.Token = v; return nil }},
		{"BUS_CREDS_FILE", func(v string) error { cfg.Bus.CredsFile = v; return nil }},
		{"STREAM_NAME", func(v string) error { cfg.Stream.Name = v; return nil }},
		{"STREAM_MAX_AGE", func(v string) error {
			d, err := ParseDuration(v)
			if err != nil {
				return err
			}
			cfg.Stream.MaxAge = Duration(d)
			return nil
		}},
		{"CODEC_PRECISION", func(v string) error {
			cfg.Codec.Precision = codec.Precision(v)
			return nil
		}},
		{"METRICS_PORT", func(v string) error {
			port, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			cfg.Metrics.Port = port
			return nil
		}},
		{"STORAGE_BUCKET", func(v string) error { cfg.Storage.Bucket = v; return nil }},
	}

	for _, o := range overrides {
		key := envPrefix + "_" + o.suffix
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return errors.WrapInvalid(err, "config", "Load", "environment override")
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("%s: %w", key, err),
				"config", "Load", "environment override")
		}
	}
	return nil
}
