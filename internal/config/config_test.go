package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "beacon.db", cfg.Database)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	assert.Equal(t, 1000, cfg.Filter.CacheSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database: /var/lib/beacon/events.db
flush_interval: 5s
batch_size: 50
log_level: debug
transmitter:
  kind: file
  path: /tmp/out.jsonl
  retry_delay: 1m
filter:
  cache_size: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/beacon/events.db", cfg.Database)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, TransmitterFile, cfg.Transmitter.Kind)
	assert.Equal(t, "/tmp/out.jsonl", cfg.Transmitter.Path)
	assert.Equal(t, time.Minute, cfg.Transmitter.RetryDelay)
	assert.Equal(t, 10, cfg.Filter.CacheSize)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "databse: typo.db\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "databse")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabase, "/env/beacon.db")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeConfig(t, "database: file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/env/beacon.db", cfg.Database)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty database", func(c *Config) { c.Database = " " }, "database is required"},
		{"negative interval", func(c *Config) { c.FlushInterval = -time.Second }, "flush_interval"},
		{"negative batch", func(c *Config) { c.BatchSize = -1 }, "batch_size"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"file without path", func(c *Config) { c.Transmitter.Kind = TransmitterFile }, "transmitter.path"},
		{"unknown kind", func(c *Config) { c.Transmitter.Kind = "http" }, "transmitter.kind"},
		{"negative cache", func(c *Config) { c.Filter.CacheSize = -1 }, "cache_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
