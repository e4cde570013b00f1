package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bluescreen10/tieredsession"
	"github.com/bluescreen10/tieredsession/gormstore"
	"gopkg.in/yaml.v3"
)

// Config is the sweeper configuration file.
type Config struct {
	// Driver selects the backend: sqlite, mysql or redis.
	Driver string `yaml:"driver"`

	// DSN is a sqlite file name, a mysql DSN or a redis URL.
	DSN string `yaml:"dsn"`

	Tables struct {
		Hot  string `yaml:"hot"`
		Cold string `yaml:"cold"`
	} `yaml:"tables"`

	// HotEngine is the mysql engine of the hot table.
	HotEngine string `yaml:"hot_engine"`

	// Prefix namespaces redis keys.
	Prefix string `yaml:"prefix"`

	SweepInterval time.Duration `yaml:"sweep_interval"`
	LogLevel      string        `yaml:"log_level"`

	Store tieredsession.Config `yaml:"store"`
}

// DefaultConfig returns the configuration used for missing fields.
func DefaultConfig() Config {
	var cfg Config
	cfg.Driver = "sqlite"
	cfg.DSN = "sessions.db"
	cfg.Tables.Hot = gormstore.DefaultHotTable
	cfg.Tables.Cold = gormstore.DefaultColdTable
	cfg.HotEngine = "MEMORY"
	cfg.Prefix = "sess"
	cfg.SweepInterval = time.Minute
	cfg.LogLevel = "info"
	return cfg
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the backends do not check themselves.
func (c *Config) Validate() error {
	switch c.Driver {
	case "sqlite", "mysql", "redis":
	default:
		return fmt.Errorf("%w: unknown driver %q", tieredsession.ErrConfiguration, c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is required", tieredsession.ErrConfiguration)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be positive", tieredsession.ErrConfiguration)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level: %v", tieredsession.ErrConfiguration, err)
	}
	return level, nil
}
