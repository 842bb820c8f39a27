package config

import (
	"fmt"
	"os"
	"sync"
)

var (
	cfg     *Config
	cfgOnce sync.Once
	cfgErr  error
)

// Get returns the global config, loading it on first call.
// Panics if config loading fails.
func Get() *Config {
	// If config was set via SetForTesting, return it directly
	if cfg != nil {
		return cfg
	}
	cfgOnce.Do(func() {
		cfg, cfgErr = Load()
	})
	if cfgErr != nil {
		panic(fmt.Sprintf("failed to load config: %v", cfgErr))
	}
	return cfg
}

// MustLoad loads config and panics on error. Call once at startup.
func MustLoad() {
	_ = Get()
}

// SetForTesting sets a custom config for testing purposes.
// This bypasses the sync.Once and allows tests to configure the global config.
// Only use in tests.
func SetForTesting(c *Config) {
	cfg = c
	cfgErr = nil
}

// Config holds all configuration for the metrics tool.
type Config struct {
	DB      DBConfig
	Schema  SchemaConfig
	Metrics MetricsConfig
	Log     LogConfig
}

// DBConfig holds the trace database configuration.
type DBConfig struct {
	Path string
}

// SchemaConfig holds descriptor pool configuration.
type SchemaConfig struct {
	// DescriptorPath is a serialized FileDescriptorSet (protoc -o output).
	DescriptorPath string
	// RootMessage is the fully-qualified name of the root metrics message.
	RootMessage string
}

// MetricsConfig holds metric catalog and output configuration.
type MetricsConfig struct {
	// Dir is the metric SQL catalog directory.
	Dir string
	// OutputPath receives the serialized root message; "-" means stdout.
	OutputPath string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns a Config with all default values.
func Default() *Config {
	return &Config{
		DB: DBConfig{
			Path: "trace.db",
		},
		Schema: SchemaConfig{
			DescriptorPath: "metrics.descriptor",
		},
		Metrics: MetricsConfig{
			Dir:        "sql",
			OutputPath: "-",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("TRACEMETRICS_DB_PATH"); path != "" {
		cfg.DB.Path = path
	}
	if path := os.Getenv("TRACEMETRICS_DESCRIPTOR_PATH"); path != "" {
		cfg.Schema.DescriptorPath = path
	}
	if name := os.Getenv("TRACEMETRICS_ROOT_MESSAGE"); name != "" {
		cfg.Schema.RootMessage = name
	}
	if dir := os.Getenv("TRACEMETRICS_SQL_DIR"); dir != "" {
		cfg.Metrics.Dir = dir
	}
	if out := os.Getenv("TRACEMETRICS_OUTPUT"); out != "" {
		cfg.Metrics.OutputPath = out
	}
	if level := os.Getenv("TRACEMETRICS_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("TRACEMETRICS_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}

	return cfg, nil
}
