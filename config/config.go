// Package config loads runtime settings from an optional YAML file and
// GOVOICE_ environment variables, with working defaults for local use.
package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds every tunable of the voice endpoint.
type Config struct {
	// SignalingAddr is the TCP address the control channel listens on or
	// dials, depending on the mode.
	SignalingAddr string `mapstructure:"signaling_addr"`

	// MediaAddr is the local UDP bind address for audio. Port 0 lets the
	// OS pick; the chosen port is advertised during signaling.
	MediaAddr string `mapstructure:"media_addr"`

	// JitterCatchUp is the pending-frame count above which the playback
	// buffer drains extra in-order frames per tick.
	JitterCatchUp int `mapstructure:"jitter_catch_up"`

	// JitterMaxFrames caps the pending map; older frames are evicted.
	JitterMaxFrames int `mapstructure:"jitter_max_frames"`

	// LogLevel is a logrus level name such as "info" or "debug".
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from the given file, or from govoice.yaml in
// the working directory when path is empty. A missing file is not an
// error; defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("govoice")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GOVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("signaling_addr", "127.0.0.1:9000")
	v.SetDefault("media_addr", "127.0.0.1:0")
	v.SetDefault("jitter_catch_up", 3)
	v.SetDefault("jitter_max_frames", 64)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "Load",
		}).Debug("No config file found, using defaults")
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"file":     v.ConfigFileUsed(),
		}).Info("Loaded configuration")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the endpoint cannot run with.
func (c *Config) Validate() error {
	if c.SignalingAddr == "" {
		return fmt.Errorf("signaling_addr cannot be empty")
	}
	if c.MediaAddr == "" {
		return fmt.Errorf("media_addr cannot be empty")
	}
	if c.JitterCatchUp < 1 {
		return fmt.Errorf("jitter_catch_up must be at least 1, got %d", c.JitterCatchUp)
	}
	if c.JitterMaxFrames < 1 {
		return fmt.Errorf("jitter_max_frames must be at least 1, got %d", c.JitterMaxFrames)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// LogrusLevel returns the parsed logrus level. Call Validate first.
func (c *Config) LogrusLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
