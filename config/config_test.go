package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Run from an empty directory so no stray govoice.yaml is picked up.
	restore := chdirTemp(t)
	defer restore()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9000", cfg.SignalingAddr)
	require.Equal(t, "127.0.0.1:0", cfg.MediaAddr)
	require.Equal(t, 3, cfg.JitterCatchUp)
	require.Equal(t, 64, cfg.JitterMaxFrames)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, logrus.InfoLevel, cfg.LogrusLevel())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "govoice.yaml")
	content := []byte("signaling_addr: 0.0.0.0:7000\njitter_catch_up: 5\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(file, content, 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:7000", cfg.SignalingAddr)
	require.Equal(t, 5, cfg.JitterCatchUp)
	require.Equal(t, "debug", cfg.LogLevel)
	// Unset keys keep their defaults.
	require.Equal(t, 64, cfg.JitterMaxFrames)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	restore := chdirTemp(t)
	defer restore()

	t.Setenv("GOVOICE_LOG_LEVEL", "warn")
	t.Setenv("GOVOICE_JITTER_CATCH_UP", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, 2, cfg.JitterCatchUp)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty signaling addr", func(c *Config) { c.SignalingAddr = "" }},
		{"empty media addr", func(c *Config) { c.MediaAddr = "" }},
		{"zero catch up", func(c *Config) { c.JitterCatchUp = 0 }},
		{"zero max frames", func(c *Config) { c.JitterMaxFrames = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				SignalingAddr:   "127.0.0.1:9000",
				MediaAddr:       "127.0.0.1:0",
				JitterCatchUp:   3,
				JitterMaxFrames: 64,
				LogLevel:        "info",
			}
			require.NoError(t, cfg.Validate())
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func chdirTemp(t *testing.T) func() {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	return func() { os.Chdir(wd) }
}
