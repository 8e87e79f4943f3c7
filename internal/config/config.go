package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Search SearchConfig `mapstructure:"search"`
	Otel   OtelConfig   `mapstructure:"otel"`
	Audit  AuditConfig  `mapstructure:"audit"`
	Log    LogConfig    `mapstructure:"log"`
}

type StoreConfig struct {
	// Driver selects the store implementation: "postgres" or "memory".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SearchConfig struct {
	// DefaultLimit caps result sets when the caller does not.
	DefaultLimit int `mapstructure:"default_limit"`
}

type OtelConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path is the JSONL output destination: a file path, "stdout" or
	// "stderr". Empty defaults to stderr so audit lines never mix with
	// command output.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "memory"},
		Search: SearchConfig{DefaultLimit: 50},
		Otel:   OtelConfig{SampleRate: 1.0, Environment: "development"},
		Audit:  AuditConfig{Enabled: false, Path: "stderr"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	switch c.Store.Driver {
	case "", "postgres", "memory":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown store driver '%s' (expected postgres or memory)", c.Store.Driver))
	}

	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		warnings = append(warnings, "store driver 'postgres' is configured but dsn is empty")
	}

	if c.Search.DefaultLimit < 0 {
		warnings = append(warnings, fmt.Sprintf("search default_limit %d is negative", c.Search.DefaultLimit))
	}

	if c.Otel.SampleRate < 0 || c.Otel.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("otel sample_rate %.2f is outside range [0.0, 1.0]", c.Otel.SampleRate))
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("INSURAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return cfg, nil
}
