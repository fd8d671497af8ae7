// Package config loads basket's settings.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML
// file, environment variables (BASKET_DB, BASKET_DRIVER, BASKET_LOG_LEVEL)
// and command line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/basket/internal/logging"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvDB       = "BASKET_DB"
	EnvDriver   = "BASKET_DRIVER"
	EnvLogLevel = "BASKET_LOG_LEVEL"
)

// DefaultPath is the database path used when nothing else is configured.
const DefaultPath = "basket.db"

// Config is the complete configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Import   ImportConfig   `yaml:"import"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is sqlite or badger.
	Driver string `yaml:"driver"`

	// Path is the SQLite file or the Badger directory. An empty path with
	// the badger driver opens an in-memory store.
	Path string `yaml:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// ImportConfig holds the defaults of the import command.
type ImportConfig struct {
	Replace  bool `yaml:"replace"`
	FailFast bool `yaml:"fail_fast"`
	DryRun   bool `yaml:"dry_run"`

	// Concurrency bounds parallel file loading. Zero means GOMAXPROCS.
	Concurrency int `yaml:"concurrency"`
}

// Default returns a configuration with defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   DefaultPath,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies the environment and
// validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDB); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup(EnvDriver); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if c.Import.Concurrency < 0 {
		errs = append(errs, errors.New("import: concurrency must not be negative"))
	}

	return errors.Join(errs...)
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return errors.New("path is required for the sqlite driver")
		}
	case DriverBadger:
	default:
		return fmt.Errorf("unknown driver %q (want %s or %s)", c.Driver, DriverSQLite, DriverBadger)
	}
	return nil
}

// Validate checks the log configuration.
func (c *LogConfig) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown format %q (want text or json)", c.Format))
	}
	return errors.Join(errs...)
}

// SlogLevel returns the parsed log level. Call after Validate.
func (c *LogConfig) SlogLevel() slog.Level {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return slog.LevelWarn
	}
	return level
}

// JSON reports whether logs are written as JSON.
func (c *LogConfig) JSON() bool {
	return c.Format == "json"
}
