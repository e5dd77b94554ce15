package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store, relay and cache backends.
const (
	DriverMemory   = "memory"
	DriverLocal    = "local"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Relay struct {
		Driver string `yaml:"driver"`
	} `yaml:"relay"`
	Cache struct {
		Driver string `yaml:"driver"`
		TTL    string `yaml:"ttl"`
	} `yaml:"cache"`
	Game struct {
		QuestionDuration string `yaml:"question_duration"`
		CodeAttempts     int    `yaml:"code_attempts"`
	} `yaml:"game"`
	Join struct {
		Rate  float64 `yaml:"rate"`
		Burst int     `yaml:"burst"`
		Idle  string  `yaml:"idle"`
	} `yaml:"join"`
}

// Load reads YAML config from path and fills in defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "karoot.db"
	}
	if c.Relay.Driver == "" {
		c.Relay.Driver = DriverLocal
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = DriverMemory
	}
	if c.Join.Rate <= 0 {
		c.Join.Rate = 1
	}
	if c.Join.Burst <= 0 {
		c.Join.Burst = 5
	}
}

// Validate checks driver names and that each chosen backend has its connection settings.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store driver %q needs postgres.url", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Relay.Driver {
	case DriverLocal:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("relay driver %q needs redis.addr", c.Relay.Driver)
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("relay driver %q needs postgres.url", c.Relay.Driver)
		}
	default:
		return fmt.Errorf("unknown relay driver %q", c.Relay.Driver)
	}
	switch c.Cache.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("cache driver %q needs redis.addr", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
