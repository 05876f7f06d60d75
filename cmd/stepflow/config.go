package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/stepflow/internal/pieces"
)

// Config holds all stepflow CLI configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // auto | console | json
	DBPath    string `json:"db_path"`

	Storage     StorageConfig     `json:"storage"`
	Connections ConnectionsConfig `json:"connections"`
	Vault       VaultConfig       `json:"vault"`

	Pieces      []pieces.MCPConfig `json:"pieces,omitempty"`
	HTTPTimeout string             `json:"http_timeout,omitempty"`
	MetricsAddr string             `json:"metrics_addr,omitempty"`
}

// StorageConfig selects the backend of STORAGE actions.
type StorageConfig struct {
	Backend       string `json:"backend"` // http | redis | none
	URL           string `json:"url,omitempty"`
	Token         string `json:"token,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisPrefix   string `json:"redis_prefix,omitempty"`
	RedisTTL      string `json:"redis_ttl,omitempty"`
}

// ConnectionsConfig selects the source of ${connections.*} values.
type ConnectionsConfig struct {
	Backend string `json:"backend"` // http | vault | none
	URL     string `json:"url,omitempty"`
	Token   string `json:"token,omitempty"`
}

// VaultConfig derives the secret vault key. The passphrase is normally
// supplied through STEPFLOW_VAULT_PASSPHRASE rather than settings.json.
type VaultConfig struct {
	Passphrase string `json:"passphrase,omitempty"`
	Salt       string `json:"salt,omitempty"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   "auto",
		DBPath:      filepath.Join(stepflowDir(), "stepflow.db"),
		Storage:     StorageConfig{Backend: "none", RedisAddr: "localhost:6379", RedisPrefix: "stepflow:"},
		Connections: ConnectionsConfig{Backend: "none"},
		Vault:       VaultConfig{Salt: "stepflow"},
	}
}

func stepflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepflow"
	}
	return filepath.Join(home, ".stepflow")
}

func settingsPath() string {
	return filepath.Join(stepflowDir(), "settings.json")
}

// loadConfig layers settings.json and the environment over the defaults.
// A missing or unreadable settings file is ignored.
func loadConfig(path string, getenv func(string) string) Config {
	cfg := defaultConfig()

	// Layer 2: settings.json.
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	envString(getenv, "STEPFLOW_LOG_LEVEL", &cfg.LogLevel)
	envString(getenv, "STEPFLOW_LOG_FORMAT", &cfg.LogFormat)
	envString(getenv, "STEPFLOW_DB_PATH", &cfg.DBPath)
	envString(getenv, "STEPFLOW_HTTP_TIMEOUT", &cfg.HTTPTimeout)
	envString(getenv, "STEPFLOW_METRICS_ADDR", &cfg.MetricsAddr)

	envString(getenv, "STEPFLOW_STORAGE_BACKEND", &cfg.Storage.Backend)
	envString(getenv, "STEPFLOW_STORAGE_URL", &cfg.Storage.URL)
	envString(getenv, "STEPFLOW_STORAGE_TOKEN", &cfg.Storage.Token)
	envString(getenv, "STEPFLOW_REDIS_ADDR", &cfg.Storage.RedisAddr)
	envString(getenv, "STEPFLOW_REDIS_PASSWORD", &cfg.Storage.RedisPassword)
	envString(getenv, "STEPFLOW_REDIS_PREFIX", &cfg.Storage.RedisPrefix)
	envString(getenv, "STEPFLOW_REDIS_TTL", &cfg.Storage.RedisTTL)
	if v := getenv("STEPFLOW_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.RedisDB = n
		}
	}

	envString(getenv, "STEPFLOW_CONNECTIONS_BACKEND", &cfg.Connections.Backend)
	envString(getenv, "STEPFLOW_CONNECTIONS_URL", &cfg.Connections.URL)
	envString(getenv, "STEPFLOW_CONNECTIONS_TOKEN", &cfg.Connections.Token)

	envString(getenv, "STEPFLOW_VAULT_PASSPHRASE", &cfg.Vault.Passphrase)
	envString(getenv, "STEPFLOW_VAULT_SALT", &cfg.Vault.Salt)

	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	cfg.Connections.Backend = strings.ToLower(cfg.Connections.Backend)
	return cfg
}

func envString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

// duration parses an optional duration setting. Empty or invalid values
// yield zero, which every consumer treats as its own default.
func duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
