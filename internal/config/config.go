// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

// Package config loads service configuration from defaults, a YAML file,
// KITCHENSPARK_ environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. A double underscore
// separates nesting levels: KITCHENSPARK_HTTP__ADDR sets http.addr.
const EnvPrefix = "KITCHENSPARK_"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	HTTP       HTTPConfig       `koanf:"http"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Database   DatabaseConfig   `koanf:"database"`
	Auth       AuthConfig       `koanf:"auth"`
	Log        LogConfig        `koanf:"log"`
	Storage    StorageConfig    `koanf:"storage"`
	Migrations MigrationsConfig `koanf:"migrations"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

// MetricsConfig configures the metrics and probe listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	MaxConns        int32  `koanf:"max_conns"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	TokenSecret   string        `koanf:"token_secret"`
	TokenIssuer   string        `koanf:"token_issuer"`
	TokenLifetime time.Duration `koanf:"token_lifetime"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StorageConfig selects the account and activity store.
type StorageConfig struct {
	Driver string `koanf:"driver"`
}

// MigrationsConfig controls schema migration at startup.
type MigrationsConfig struct {
	Auto bool `koanf:"auto"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":                 ":8080",
		"http.request_timeout":      10 * time.Second,
		"http.read_timeout":         15 * time.Second,
		"http.write_timeout":        15 * time.Second,
		"metrics.addr":              "127.0.0.1:9100",
		"database.url":              "",
		"database.max_conns":        10,
		"database.connect_attempts": 5,
		"auth.token_secret":         "",
		"auth.token_issuer":         "kitchenspark",
		"auth.token_lifetime":       time.Duration(0),
		"log.format":                "json",
		"log.level":                 "info",
		"storage.driver":            DriverPostgres,
		"migrations.auto":           false,
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":      "http.addr",
	"metrics-addr":   "metrics.addr",
	"database-url":   "database.url",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"storage-driver": "storage.driver",
	"auto-migrate":   "migrations.auto",
}

// RegisterFlags adds the overridable settings to fs. Flags only take effect
// when set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "", "API listen address")
	fs.String("metrics-addr", "", "metrics/health listen address (empty disables)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("storage-driver", "", "account store (postgres or memory)")
	fs.Bool("auto-migrate", false, "apply pending migrations on startup")
}

// Load builds a Config. path may be empty to skip the YAML file; flags may
// be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load config file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load environment").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal config").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps KITCHENSPARK_AUTH__TOKEN_SECRET to auth.token_secret.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "http.addr").Errorf("http.addr is required")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "http.request_timeout").
			Errorf("http.request_timeout must be positive, got %s", c.HTTP.RequestTimeout)
	}
	if c.Auth.TokenSecret == "" {
		return oops.Code("CONFIG_INVALID").With("key", "auth.token_secret").Errorf("auth.token_secret is required")
	}
	if c.Auth.TokenLifetime < 0 {
		return oops.Code("CONFIG_INVALID").With("key", "auth.token_lifetime").
			Errorf("auth.token_lifetime must not be negative, got %s", c.Auth.TokenLifetime)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").With("key", "log.format").
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return oops.Code("CONFIG_INVALID").With("key", "log.level").
			Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").With("key", "database.url").
				Errorf("database.url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return oops.Code("CONFIG_INVALID").With("key", "storage.driver").
			Errorf("storage.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Storage.Driver)
	}
	return nil
}
