// Package config loads beacon configuration.
//
// Order: defaults -> YAML file -> environment overrides -> Validate.
// Command-line flags are applied by the caller after Load.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/beacon/internal/filter"
)

// Transmitter kinds.
const (
	TransmitterStdout = "stdout"
	TransmitterFile   = "file"
	TransmitterNone   = "none"
)

// Environment variables that override file values.
const (
	EnvDatabase = "BEACON_DB"
	EnvLogLevel = "BEACON_LOG_LEVEL"
)

// Config holds the beacon configuration.
type Config struct {
	Database      string            `yaml:"database"`
	FlushInterval time.Duration     `yaml:"flush_interval"` // 0 disables the periodic flush
	BatchSize     int               `yaml:"batch_size"`     // 0 means unlimited
	LogLevel      string            `yaml:"log_level"`
	MetricsAddr   string            `yaml:"metrics_addr"`
	Transmitter   TransmitterConfig `yaml:"transmitter"`
	Filter        FilterConfig      `yaml:"filter"`
}

type TransmitterConfig struct {
	Kind       string        `yaml:"kind"`
	Path       string        `yaml:"path"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type FilterConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:      "beacon.db",
		FlushInterval: 30 * time.Second,
		LogLevel:      "info",
		Transmitter: TransmitterConfig{
			Kind:       TransmitterStdout,
			RetryDelay: 30 * time.Second,
		},
		Filter: FilterConfig{
			CacheSize: filter.DefaultCacheSize,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decode rejects unknown fields so typos surface instead of being ignored.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnvOverrides applies BEACON_DB and BEACON_LOG_LEVEL when set.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks field ranges and combinations.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.FlushInterval < 0 {
		errs = append(errs, fmt.Errorf("flush_interval must be >= 0, got %s", c.FlushInterval))
	}
	if c.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 0, got %d", c.BatchSize))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Filter.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("filter.cache_size must be >= 0, got %d", c.Filter.CacheSize))
	}
	if c.Transmitter.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("transmitter.retry_delay must be >= 0, got %s", c.Transmitter.RetryDelay))
	}

	switch c.Transmitter.Kind {
	case TransmitterStdout, TransmitterNone:
	case TransmitterFile:
		if c.Transmitter.Path == "" {
			errs = append(errs, errors.New("transmitter.path is required for kind file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transmitter.kind %q", c.Transmitter.Kind))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
}
