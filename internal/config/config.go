// Package config loads the optional .cochange.yaml / COCHANGE_* defaults
// layer that underlies the CLI's flags, in the teacher's viper-wiring idiom.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every default the CLI flags may fall back to. Flags the user
// actually sets always win; Load only supplies the zero-flag fallback.
type Config struct {
	Suffix       string `mapstructure:"suffix"`
	CacheSize    int    `mapstructure:"cache_size"`
	LogJSON      bool   `mapstructure:"log_json"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Defaults returns the built-in fallback values, applied before any config
// file or environment variable is consulted.
func Defaults() Config {
	return Config{
		Suffix:    ".java",
		CacheSize: 0, // loaded but not read by the pipeline; the parse cache is unbounded
		LogJSON:   false,
	}
}

// Load builds a Config from, in ascending priority: built-in defaults, an
// optional .cochange.yaml discovered in the current directory or $HOME, and
// COCHANGE_-prefixed environment variables.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	v.SetDefault("suffix", defaults.Suffix)
	v.SetDefault("cache_size", defaults.CacheSize)
	v.SetDefault("log_json", defaults.LogJSON)
	v.SetDefault("otlp_endpoint", defaults.OTLPEndpoint)

	v.SetConfigName(".cochange")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}
