// Package config loads the server configuration file. Storage backends are
// selected here; tuning knobs nest the runtime config verbatim so a YAML key
// maps one-to-one onto an engine threshold.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mroche14/flowline/internal/runtime"
)

// Config is the root of flowline.yaml.
type Config struct {
	Version int `yaml:"version"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	// Store selects the backend per concern: "memory", "redis" for sessions
	// and facts, "memory", "postgres" for graphs.
	Store struct {
		Sessions string `yaml:"sessions"`
		Facts    string `yaml:"facts"`
		Graphs   string `yaml:"graphs"`
	} `yaml:"store"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	// Postgres connects via a DSN; empty means the PG* environment variables.
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	Logging struct {
		Format string `yaml:"format"` // "text" or "json"
		Level  string `yaml:"level"`
	} `yaml:"logging"`

	Engine runtime.Config `yaml:"engine"`
}

// Default returns the configuration used when no file is given: in-memory
// stores and default engine tuning.
func Default() *Config {
	cfg := &Config{Version: 1, Engine: runtime.DefaultConfig()}
	cfg.Server.Port = 8080
	cfg.Store.Sessions = "memory"
	cfg.Store.Facts = "memory"
	cfg.Store.Graphs = "memory"
	cfg.Redis.Addr = "127.0.0.1:6379"
	cfg.Logging.Format = "text"
	return cfg
}

// Load reads a config file on top of the defaults. Environment variables
// FLOWLINE_PORT and FLOWLINE_REDIS_ADDR override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if cfg.Version != 1 {
			return nil, fmt.Errorf("unsupported config version: %d", cfg.Version)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FLOWLINE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FLOWLINE_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}
