package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Destinations DestinationsConfig `koanf:"destinations"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

// DatabaseConfig configures the delivery audit log. An empty DSN disables
// it; dispatch runs identically without a database.
type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type DestinationsConfig struct {
	// SubscriptionsDir holds per-destination subscription YAML files.
	SubscriptionsDir string `koanf:"subscriptions_dir"`

	// RequestTimeout bounds each outbound partner request.
	RequestTimeout string `koanf:"request_timeout"` // parsed and validated on startup
}

func (c DestinationsConfig) EffectiveRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if c.Database.DSN != "" {
		if c.Database.Type != "" && c.Database.Type != "postgres" {
			return fmt.Errorf("unsupported database.type %q", c.Database.Type)
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	}

	if strings.TrimSpace(c.Destinations.SubscriptionsDir) == "" {
		return fmt.Errorf("destinations.subscriptions_dir is required")
	}
	if c.Destinations.RequestTimeout != "" {
		d, err := time.ParseDuration(c.Destinations.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid destinations.request_timeout %q: %w", c.Destinations.RequestTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("destinations.request_timeout must be > 0")
		}
	}

	return nil
}

// Load parses config from defaults, then an optional YAML file, then env
// vars (ACTIOND_ prefix, "__" maps to "."), and validates the result.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                    8080,
		"server.host":                    "0.0.0.0",
		"server.max_body_size_mb":        1,
		"server.mode":                    "release",
		"database.type":                  "postgres",
		"database.dsn":                   "",
		"database.max_open_conns":        25,
		"database.max_idle_conns":        25,
		"database.auto_migrate":          true,
		"destinations.subscriptions_dir": "./config/subscriptions",
		"destinations.request_timeout":   "10s",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("ACTIOND_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ACTIOND_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
