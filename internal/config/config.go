// Package config holds the process-wide configuration for keygate. All
// tunables (window length, quota defaults, hash cost) are carried in
// explicit structs injected at construction; nothing reads ambient globals.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level keygate configuration file.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Limits      LimitsConfig      `yaml:"limits"`
	Storage     StorageConfig     `yaml:"storage"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
	LoginRatePerMin int      `yaml:"login_rate_per_min"`
}

// AuthConfig controls credential shape, hashing, and management sessions.
type AuthConfig struct {
	KeyPrefix    string `yaml:"key_prefix"`
	KeySuffixLen int    `yaml:"key_suffix_len"`
	BcryptCost   int    `yaml:"bcrypt_cost"`
	JWTSecret    string `yaml:"jwt_secret"`
	JWTExpiry    string `yaml:"jwt_expiry"`
}

// LimitsConfig controls the rolling-window rate limiter.
type LimitsConfig struct {
	Window       string `yaml:"window"`
	DefaultQuota int    `yaml:"default_quota"`
	StoreTimeout string `yaml:"store_timeout"`
}

// StorageConfig selects and configures the durable store.
type StorageConfig struct {
	Driver  string `yaml:"driver"` // sqlite or postgres
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// EntitlementConfig points at the external entitlement service. An empty URL
// selects the static gate with DefaultQuota from the limits section.
type EntitlementConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible production defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORSOrigins:     []string{"*"},
			LoginRatePerMin: 10,
		},
		Auth: AuthConfig{
			KeyPrefix:    "kg_live_",
			KeySuffixLen: 40,
			BcryptCost:   10,
			JWTExpiry:    "24h",
		},
		Limits: LimitsConfig{
			Window:       "1h",
			DefaultQuota: 1000,
			StoreTimeout: "5s",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Entitlement: EntitlementConfig{
			Timeout: "5s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a YAML configuration file over the defaults.
// Environment variables referenced as ${VAR_NAME} in the file are expanded
// before parsing.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Duration parses s, falling back to def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
