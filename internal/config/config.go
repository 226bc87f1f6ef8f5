// Package config holds the stakeclaw process configuration. Files are JSON
// or TOML, chosen by extension, and decode over DefaultConfig.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// Config holds all stakeclaw configuration
type Config struct {
	Server      ServerConfig      `json:"server" toml:"server"`
	Chains      ChainsConfig      `json:"chains" toml:"chains"`
	Preferences PreferencesConfig `json:"preferences" toml:"preferences"`
	Transport   TransportConfig   `json:"transport" toml:"transport"`
	Health      HealthConfig      `json:"health" toml:"health"`
	API         APIConfig         `json:"api" toml:"api"`
}

type ServerConfig struct {
	Port     int    `json:"port" toml:"port"`
	DataDir  string `json:"dataDir" toml:"dataDir"`
	LogLevel string `json:"logLevel" toml:"logLevel"`
}

// ChainsConfig selects the chain table. An empty File means the embedded one.
type ChainsConfig struct {
	File    string `json:"file,omitempty" toml:"file,omitempty"`
	ABIDir  string `json:"abiDir,omitempty" toml:"abiDir,omitempty"`
	Default uint64 `json:"default,omitempty" toml:"default,omitempty"`
}

// PreferencesConfig selects the preference backend. Path is relative to
// Server.DataDir when not absolute.
type PreferencesConfig struct {
	Backend   string `json:"backend" toml:"backend"` // file | sqlite | memory
	Path      string `json:"path,omitempty" toml:"path,omitempty"`
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty"`
}

type TransportConfig struct {
	RequestTimeoutSec int `json:"requestTimeoutSec" toml:"requestTimeoutSec"`
	CloseTimeoutSec   int `json:"closeTimeoutSec" toml:"closeTimeoutSec"`
}

type HealthConfig struct {
	Enabled    bool   `json:"enabled" toml:"enabled"`
	Schedule   string `json:"schedule" toml:"schedule"` // cron expression or @every descriptor
	TimeoutSec int    `json:"timeoutSec" toml:"timeoutSec"`
}

type APIConfig struct {
	Enabled bool `json:"enabled" toml:"enabled"`
	// AllowedOrigins are host patterns (path.Match syntax, e.g.
	// "localhost:*") whose pages may open the session stream. Same-origin
	// requests are always allowed.
	AllowedOrigins []string `json:"allowedOrigins" toml:"allowedOrigins"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8420,
			DataDir:  "./data",
			LogLevel: "info",
		},
		Chains: ChainsConfig{
			Default: 46, // Darwinia
		},
		Preferences: PreferencesConfig{
			Backend:   "file",
			Namespace: "stakeclaw.preferences",
		},
		Transport: TransportConfig{
			RequestTimeoutSec: 15,
			CloseTimeoutSec:   5,
		},
		Health: HealthConfig{
			Enabled:    true,
			Schedule:   "@every 5m",
			TimeoutSec: 10,
		},
		API: APIConfig{
			Enabled:        true,
			AllowedOrigins: []string{"localhost:*", "127.0.0.1:*"},
		},
	}
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Transport.RequestTimeoutSec) * time.Second
}

func (c *Config) CloseTimeout() time.Duration {
	return time.Duration(c.Transport.CloseTimeoutSec) * time.Second
}

func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.Health.TimeoutSec) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := ParseLogLevel(c.Server.LogLevel); err != nil {
		return err
	}
	switch c.Preferences.Backend {
	case "", "file", "sqlite", "memory":
	default:
		return fmt.Errorf("preferences.backend %q: want file, sqlite or memory", c.Preferences.Backend)
	}
	if c.Transport.RequestTimeoutSec <= 0 || c.Transport.CloseTimeoutSec <= 0 {
		return fmt.Errorf("transport timeouts must be positive")
	}
	if c.Health.Enabled {
		if _, err := cron.ParseStandard(c.Health.Schedule); err != nil {
			return fmt.Errorf("health.schedule %q: %w", c.Health.Schedule, err)
		}
		if c.Health.TimeoutSec <= 0 {
			return fmt.Errorf("health.timeoutSec must be positive")
		}
	}
	for _, p := range c.API.AllowedOrigins {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("api.allowedOrigins %q: %w", p, err)
		}
	}
	return nil
}

// ParseLogLevel maps a config log level to slog.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Load reads config from a JSON or TOML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data, isTOML(path))
	if err != nil {
		return nil, err
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return cfg, nil
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte, asTOML bool) (*Config, error) {
	cfg := DefaultConfig()
	if asTOML {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes config to path, as TOML when the extension is .toml and as
// JSON otherwise.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = json.MarshalIndent(c, "", "  "); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0640)
}

// PreferencesPath resolves the preference file against the data dir.
func (c *Config) PreferencesPath() string {
	p := c.Preferences.Path
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Server.DataDir, p)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
