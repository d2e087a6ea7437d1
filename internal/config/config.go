// Package config loads the arbor CLI configuration: an optional YAML file
// overridden by ARBOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "arbor.yaml"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config is the resolved configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Library    LibraryConfig    `yaml:"library"`
	Schema     string           `yaml:"schema"`
	Store      StoreConfig      `yaml:"store"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Refiner    RefinerConfig    `yaml:"refiner"`
	Host       HostConfig       `yaml:"host"`
	Editor     EditorConfig     `yaml:"editor"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// LibraryConfig points at the workflow documents on disk.
type LibraryConfig struct {
	Dir      string `yaml:"dir"`
	ReadOnly bool   `yaml:"read_only"`
}

// StoreConfig selects the conversation store.
type StoreConfig struct {
	Driver   string        `yaml:"driver"`
	Path     string        `yaml:"path"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// EncryptionConfig holds base64 AES-256 keys. An empty key disables encryption.
type EncryptionConfig struct {
	Key          string   `yaml:"key"`
	FallbackKeys []string `yaml:"fallback_keys"`
	MaskPII      bool     `yaml:"mask_pii"`
}

// RefinerConfig selects the language model.
type RefinerConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Token       string  `yaml:"-"`
	Temperature float64 `yaml:"temperature"`
}

// HostConfig tunes request handling.
type HostConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
	// Command starts the host for `arbor refine`; empty means `arbor host`.
	Command []string `yaml:"command"`
}

// EditorConfig selects the editor for OPEN_WORKFLOW_IN_EDITOR.
type EditorConfig struct {
	Name   string `yaml:"name"`
	Config string `yaml:"config"`
}

// HTTPConfig configures `arbor serve`.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel: "info",
		Library:  LibraryConfig{Dir: "."},
		Store:    StoreConfig{Driver: StoreMemory, Path: ".arbor/conversations.db", Addr: "localhost:6379"},
		Refiner:  RefinerConfig{Temperature: 0.2},
		Host:     HostConfig{MaxIterations: 20, Timeout: 60 * time.Second},
		Editor:   EditorConfig{Config: "editors.yaml"},
		HTTP:     HTTPConfig{Addr: ":8080"},
	}
}

// Load reads path (when it exists) over the defaults and applies the environment.
// A missing file is only an error when required is set.
func Load(path string, required bool) (Config, error) {
	return LoadWith(path, required, os.Getenv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, required bool, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("ARBOR_LOG_LEVEL", &cfg.LogLevel)
	str("ARBOR_LIBRARY", &cfg.Library.Dir)
	str("ARBOR_SCHEMA", &cfg.Schema)
	str("ARBOR_STORE", &cfg.Store.Driver)
	str("ARBOR_SQLITE_PATH", &cfg.Store.Path)
	str("ARBOR_REDIS_ADDR", &cfg.Store.Addr)
	str("ARBOR_REDIS_PASSWORD", &cfg.Store.Password)
	str("ARBOR_ENCRYPTION_KEY", &cfg.Encryption.Key)
	str("ARBOR_LLM_MODEL", &cfg.Refiner.Model)
	str("ARBOR_LLM_BASE_URL", &cfg.Refiner.BaseURL)
	str("OPENAI_API_KEY", &cfg.Refiner.Token)
	str("ARBOR_LLM_TOKEN", &cfg.Refiner.Token)
	str("ARBOR_EDITOR", &cfg.Editor.Name)
	str("ARBOR_HTTP_ADDR", &cfg.HTTP.Addr)

	if v := getenv("ARBOR_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARBOR_REDIS_DB: %w", err)
		}
		cfg.Store.DB = db
	}
	if v := getenv("ARBOR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ARBOR_TIMEOUT: %w", err)
		}
		cfg.Host.Timeout = d
	}
	return nil
}

// Validate rejects configurations no command can run with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store driver %q (memory, sqlite, redis)", c.Store.Driver)
	}
	if c.Host.MaxIterations < 0 {
		return fmt.Errorf("host.max_iterations must not be negative")
	}
	if c.Host.Timeout <= 0 {
		return fmt.Errorf("host.timeout must be positive")
	}
	return nil
}
