// Package config loads civicpoints settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	// Server
	Port      string `env:"CIVIC_PORT" envDefault:"8080"`
	DBPath    string `env:"CIVIC_DB_PATH" envDefault:"civicpoints.db"`
	LogLevel  string `env:"CIVIC_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CIVIC_LOG_FORMAT" envDefault:"text"`

	// Device cache
	CacheBackend    string `env:"CIVIC_CACHE_BACKEND" envDefault:"sqlite"`
	CachePath       string `env:"CIVIC_CACHE_PATH" envDefault:"civicpoints-cache.db"`
	CachePrefix     string `env:"CIVIC_CACHE_PREFIX" envDefault:"civic"`
	CachePassphrase string `env:"CIVIC_CACHE_PASSPHRASE"`

	RedisAddr     string `env:"CIVIC_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"CIVIC_REDIS_PASSWORD"`
	RedisDB       int    `env:"CIVIC_REDIS_DB" envDefault:"0"`

	// Device identity and backend
	ServerURL    string        `env:"CIVIC_SERVER_URL" envDefault:"http://localhost:8080"`
	Token        string        `env:"CIVIC_TOKEN"`
	MemberID     int64         `env:"CIVIC_MEMBER_ID"`
	StaleAfter   time.Duration `env:"CIVIC_STALE_AFTER" envDefault:"5m"`
	ProbeTimeout time.Duration `env:"CIVIC_PROBE_TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file from the working directory and then
// parses the environment. Variables already set win over .env entries.
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped.
func LoadFiles(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env.Parse cannot.
func (c Config) Validate() error {
	switch c.CacheBackend {
	case CacheSQLite, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("CIVIC_CACHE_BACKEND must be sqlite, memory or redis, got %q", c.CacheBackend)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("CIVIC_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("CIVIC_STALE_AFTER must be positive, got %s", c.StaleAfter)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("CIVIC_PROBE_TIMEOUT must be positive, got %s", c.ProbeTimeout)
	}
	if c.MemberID < 0 {
		return fmt.Errorf("CIVIC_MEMBER_ID must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}
