// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package config loads Tourbook configuration from defaults, an optional
// YAML file, TOURBOOK_* environment variables and command-line flags, in
// increasing order of precedence.
//
// Environment variable names map to keys by stripping the prefix, lower-casing
// and turning double underscores into dots: TOURBOOK_AUTH__JWT_SECRET sets
// auth.jwt_secret.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/tourbook/tourbook/internal/auth"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "TOURBOOK_"

// Config is the complete service configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	Mail     MailConfig     `koanf:"mail"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL         string `koanf:"url"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// AuthConfig configures credential handling.
type AuthConfig struct {
	JWTSecret    string        `koanf:"jwt_secret"`
	SessionTTL   time.Duration `koanf:"session_ttl"`
	CookieTTL    time.Duration `koanf:"cookie_ttl"`
	CookieSecure bool          `koanf:"cookie_secure"`
	Argon2       Argon2Config  `koanf:"argon2"`
}

// Argon2Config is the password hashing cost.
type Argon2Config struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// Params converts the cost settings for auth.NewArgon2idHasher.
func (c Argon2Config) Params() auth.Argon2Params {
	return auth.Argon2Params{Time: c.Time, MemoryKiB: c.MemoryKiB, Threads: c.Threads}
}

// MailConfig configures outbound SMTP. An empty Host discards mail.
type MailConfig struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	BaseURL  string        `koanf:"base_url"`
	Timeout  time.Duration `koanf:"timeout"`
}

// defaults are loaded before any other source.
var defaults = map[string]any{
	"http.addr":              ":8080",
	"http.shutdown_timeout":  "10s",
	"metrics.addr":           "127.0.0.1:9100",
	"log.format":             "json",
	"log.level":              "info",
	"auth.session_ttl":       auth.DefaultSessionTTL.String(),
	"auth.cookie_ttl":        auth.DefaultCookieTTL.String(),
	"auth.cookie_secure":     true,
	"auth.argon2.time":       auth.DefaultArgon2Params.Time,
	"auth.argon2.memory_kib": auth.DefaultArgon2Params.MemoryKiB,
	"auth.argon2.threads":    auth.DefaultArgon2Params.Threads,
	"mail.port":              587,
	"mail.from":              "Tourbook <no-reply@tourbook.io>",
	"mail.base_url":          "http://localhost:8080",
	"mail.timeout":           "10s",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", false, "apply pending migrations on startup")
	fs.String("http-addr", "", "API listen address")
	fs.String("metrics-addr", "", "metrics/health listen address (empty = disabled)")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// Load reads configuration. path may be empty to skip the file, and flags may
// be nil. Only flags set explicitly on the command line override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrapf(err, "read config file")
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "read environment")
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "read flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode config")
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.Database.URL == "" {
		return invalid("database.url", "database url is required")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if len(c.Auth.JWTSecret) < auth.MinSigningKeyBytes {
		return invalid("auth.jwt_secret", "jwt secret must be at least %d bytes", auth.MinSigningKeyBytes)
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.CookieTTL <= 0 {
		return invalid("auth.session_ttl", "session and cookie ttl must be positive")
	}
	if c.Auth.Argon2.Time == 0 || c.Auth.Argon2.MemoryKiB == 0 || c.Auth.Argon2.Threads == 0 {
		return invalid("auth.argon2", "argon2 time, memory and threads must be positive")
	}
	if c.Auth.Argon2.Time > auth.MaxArgon2Time || c.Auth.Argon2.MemoryKiB > auth.MaxArgon2MemoryKiB {
		return invalid("auth.argon2", "argon2 cost above t=%d m=%d", auth.MaxArgon2Time, auth.MaxArgon2MemoryKiB)
	}
	if c.Mail.Host != "" {
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			return invalid("mail.port", "mail port %d out of range", c.Mail.Port)
		}
		if c.Mail.From == "" {
			return invalid("mail.from", "mail sender is required when mail.host is set")
		}
		if c.Mail.Timeout <= 0 {
			return invalid("mail.timeout", "mail timeout must be positive")
		}
	}
	if u, err := url.Parse(c.Mail.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("mail.base_url", "mail base url %q must be absolute", c.Mail.BaseURL)
	}
	return nil
}

// DatabaseURLRedacted returns the database URL with any password removed,
// for logging.
func (c *Config) DatabaseURLRedacted() string {
	u, err := url.Parse(c.Database.URL)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
