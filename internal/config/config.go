package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"maglink/internal/layout"
)

// Config holds all service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Grid    GridConfig    `yaml:"grid"`
	Limits  LimitsConfig  `yaml:"limits"`
	Lock    LockConfig    `yaml:"lock"`
	Audit   AuditConfig   `yaml:"audit"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeout    string `yaml:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver        string `yaml:"driver"` // sqlite, postgres, mysql, mongodb
	DSN           string `yaml:"dsn"`
	MongoDatabase string `yaml:"mongo_database"`
}

// GridConfig describes the page grid.
type GridConfig struct {
	Columns   int `yaml:"columns"`
	ScanSlack int `yaml:"scan_slack"`
	MaxRows   int `yaml:"max_rows"`
}

// LimitsConfig holds plan limits. -1 means unlimited.
type LimitsConfig struct {
	BlocksPerPage int `yaml:"blocks_per_page"`
}

// LockConfig selects how repacks of one page are serialized.
type LockConfig struct {
	Backend       string `yaml:"backend"` // memory, redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           string `yaml:"ttl"`
}

// AuditConfig schedules the background overlap audit. An empty schedule
// disables it.
type AuditConfig struct {
	Schedule string `yaml:"schedule"`
}

// HistoryConfig bounds the layout history kept per page.
type HistoryConfig struct {
	MaxSnapshots int `yaml:"max_snapshots"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "maglink")
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    "15s",
			WriteTimeout:   "30s",
			RequestTimeout: "20s",
		},
		Storage: StorageConfig{
			Driver:        "sqlite",
			DSN:           filepath.Join(dataDir, "maglink.db"),
			MongoDatabase: "maglink",
		},
		Grid: GridConfig{
			Columns:   layout.DefaultColumns,
			ScanSlack: layout.ScanSlack,
			MaxRows:   layout.DefaultMaxRows,
		},
		Limits: LimitsConfig{BlocksPerPage: -1},
		Lock: LockConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			TTL:       "10s",
		},
		Audit:   AuditConfig{Schedule: "@every 15m"},
		History: HistoryConfig{MaxSnapshots: 40},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path on top of Default, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MAGLINK_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MAGLINK_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("MAGLINK_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("MAGLINK_LOCK_BACKEND"); v != "" {
		c.Lock.Backend = v
	}
	if v := os.Getenv("MAGLINK_REDIS_ADDR"); v != "" {
		c.Lock.RedisAddr = v
	}
	if v := os.Getenv("MAGLINK_REDIS_PASSWORD"); v != "" {
		c.Lock.RedisPassword = v
	}
	if v := os.Getenv("MAGLINK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MAGLINK_BLOCKS_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.BlocksPerPage = n
		}
	}
}

// Validate checks values that would otherwise fail far from the config.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres", "mysql", "mongodb":
	default:
		return fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Grid.Columns < 1 {
		return fmt.Errorf("grid.columns must be at least 1, got %d", c.Grid.Columns)
	}
	if c.Grid.MaxRows < 1 {
		return fmt.Errorf("grid.max_rows must be at least 1, got %d", c.Grid.MaxRows)
	}
	switch c.Lock.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("lock.backend: unsupported backend %q", c.Lock.Backend)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	for name, v := range map[string]string{
		"server.read_timeout":    c.Server.ReadTimeout,
		"server.write_timeout":   c.Server.WriteTimeout,
		"server.request_timeout": c.Server.RequestTimeout,
		"lock.ttl":               c.Lock.TTL,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// LayoutGrid returns the layout grid described by the config.
func (c *Config) LayoutGrid() layout.Grid {
	g := layout.NewGrid(c.Grid.Columns)
	if c.Grid.ScanSlack > 0 {
		g.ScanSlack = c.Grid.ScanSlack
	}
	if c.Grid.MaxRows > 0 {
		g.MaxRows = c.Grid.MaxRows
	}
	return g
}

// Duration parses s, returning fallback for empty or invalid values.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
