// Package config loads the service configuration from a YAML or JSON file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fleetops/dutyroster/core/hos"
	"github.com/fleetops/dutyroster/core/metrics"
	"github.com/fleetops/dutyroster/infra/notify"
	"github.com/fleetops/dutyroster/infra/scorer"
)

// Config is the full service configuration tree.
type Config struct {
	Server  ServerConfig   `json:"server"`
	Store   StoreConfig    `json:"store"`
	HOS     HOSConfig      `json:"hos"`
	Scorer  scorer.Config  `json:"scorer"`
	Metrics metrics.Config `json:"metrics"`
	Notify  notify.Config  `json:"notify"`
	Logging LoggingConfig  `json:"logging"`
}

// LoggingConfig controls the process-wide log level.
type LoggingConfig struct {
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level is one the logger understands.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", c.Level)
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// StoreConfig describes the SQLite backing store.
type StoreConfig struct {
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "dutyroster.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}

// HOSConfig overrides the regulatory limits. Zero values keep the defaults.
type HOSConfig struct {
	ShortWindowHours float64 `json:"short_window_hours"`
	ShortLimitHours  float64 `json:"short_limit_hours"`
	LongWindowHours  float64 `json:"long_window_hours"`
	LongLimitHours   float64 `json:"long_limit_hours"`
}

// Limits resolves the overrides against the regulatory defaults.
func (c HOSConfig) Limits() hos.Limits {
	l := hos.DefaultLimits()
	if c.ShortWindowHours > 0 {
		l.ShortWindow = time.Duration(c.ShortWindowHours * float64(time.Hour))
	}
	if c.ShortLimitHours > 0 {
		l.ShortLimit = c.ShortLimitHours
	}
	if c.LongWindowHours > 0 {
		l.LongWindow = time.Duration(c.LongWindowHours * float64(time.Hour))
	}
	if c.LongLimitHours > 0 {
		l.LongLimit = c.LongLimitHours
	}
	return l
}

// Validate rejects negative overrides.
func (c HOSConfig) Validate() error {
	vals := []float64{c.ShortWindowHours, c.ShortLimitHours, c.LongWindowHours, c.LongLimitHours}
	for _, v := range vals {
		if v < 0 {
			return fmt.Errorf("hos limits must be non-negative")
		}
	}
	return nil
}

// Load reads the configuration file and applies DR_-prefixed environment
// overrides, where a double underscore separates nesting levels
// (DR_STORE__PATH overrides store.path).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("DR_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "dr_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Server.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Scorer.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Notify.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.HOS.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
