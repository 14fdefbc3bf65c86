// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

// Package config loads Taskweave configuration from a YAML file, command
// line flags, and the environment.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Environment variables that carry secrets and deployment-specific values.
// They override anything in the config file.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvFlashKey    = "TASKWEAVE_FLASH_KEY"
)

// Session backend names.
const (
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
)

// Config is the full application configuration.
type Config struct {
	Server   Server   `koanf:"server"`
	Log      Log      `koanf:"log"`
	Database Database `koanf:"database"`
	Session  Session  `koanf:"session"`
	Auth     Auth     `koanf:"auth"`
	Flash    Flash    `koanf:"flash"`
}

// Server holds listener addresses.
type Server struct {
	Addr          string `koanf:"addr"`
	MetricsAddr   string `koanf:"metrics_addr"`
	SecureCookies bool   `koanf:"secure_cookies"`
}

// Log holds logging settings.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Database holds the PostgreSQL connection settings.
type Database struct {
	URL string `koanf:"url"`
}

// Session holds session store settings.
type Session struct {
	Backend string        `koanf:"backend"`
	TTL     time.Duration `koanf:"ttl"`
}

// Auth holds authentication settings.
type Auth struct {
	HashWorkers int `koanf:"hash_workers"`
}

// Flash holds the flash-cookie MAC key. The key is process-wide secret
// state: loaded once, never rotated while the process runs, never logged.
type Flash struct {
	Key string `koanf:"key"`
}

// RegisterFlags declares every config flag with its default value. The
// flag set is later handed to Load so posflag can bind it.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("server.addr", ":8080", "HTTP listen address")
	fs.String("server.metrics_addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.Bool("server.secure_cookies", false, "set the Secure attribute on cookies")
	fs.String("log.format", "json", "log format (json or text)")
	fs.String("log.level", "info", "log level (debug, info, warn, error)")
	fs.String("database.url", "", "PostgreSQL connection URL")
	fs.String("session.backend", SessionBackendMemory, "session store backend (memory or postgres)")
	fs.Duration("session.ttl", 24*time.Hour, "absolute session expiry")
	fs.Int("auth.hash_workers", 4, "bounded password-hashing worker count")
	fs.String("flash.key", "", "flash cookie MAC key (32+ bytes)")
}

// Load builds the configuration: YAML file (if path is non-empty), then
// flags, then secret-bearing environment variables.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv(EnvFlashKey); v != "" {
		cfg.Flash.Key = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log.format must be 'json' or 'text'")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.url is required (set %s)", EnvDatabaseURL)
	}
	if c.Session.Backend != SessionBackendMemory && c.Session.Backend != SessionBackendPostgres {
		return oops.Code("CONFIG_INVALID").
			With("backend", c.Session.Backend).
			Errorf("session.backend must be 'memory' or 'postgres'")
	}
	if len(c.Flash.Key) < 32 {
		return oops.Code("CONFIG_INVALID").
			Errorf("flash.key must be at least 32 bytes (set %s)", EnvFlashKey)
	}
	return nil
}
