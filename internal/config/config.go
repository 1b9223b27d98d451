// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.soilwise/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Model: Ollama host, chat model, embedding model and dimension
//   - Storage: PostgreSQL connection (see storage.go)
//   - Cache: Redis connection and answer TTL
//   - Ingest: worker pool sizing
//
// Security: sensitive values (passwords) are masked in MarshalJSON.
// Validation: fail-fast range checks in validation.go with sentinel errors.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidModelName indicates the chat model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedModel indicates the embedding model name is empty.
	ErrInvalidEmbedModel = errors.New("invalid embedding model")

	// ErrInvalidEmbedDim indicates the embedding dimension is out of range.
	ErrInvalidEmbedDim = errors.New("invalid embedding dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRedisAddr indicates the Redis address is invalid.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidWorkerCount indicates the ingest worker count is out of range.
	ErrInvalidWorkerCount = errors.New("invalid ingest worker count")

	// ErrInvalidCacheTTL indicates the answer cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")
)

// DefaultEmbedDim is the embedding dimensionality the schema is built for.
// The pgvector column is vector(384); see db/migrations.
const DefaultEmbedDim = 384

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model configuration
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`
	ModelName  string `mapstructure:"model_name" json:"model_name"`
	EmbedModel string `mapstructure:"embed_model" json:"embed_model"`
	EmbedDim   int    `mapstructure:"embed_dim" json:"embed_dim"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Cache configuration
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisUser     string `mapstructure:"redis_user" json:"redis_user"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`
	CacheTTLSec   int    `mapstructure:"cache_ttl_sec" json:"cache_ttl_sec"`

	// Ingestion worker pool
	IngestWorkers   int `mapstructure:"ingest_workers" json:"ingest_workers"`
	IngestQueueSize int `mapstructure:"ingest_queue_size" json:"ingest_queue_size"`

	// DefaultOwner is the owner identity used for requests that carry no
	// X-Owner-ID header (single-tenant deployments).
	DefaultOwner string `mapstructure:"default_owner" json:"default_owner"`

	// Retrieval search strategy. When false, the store over-fetches an
	// unfiltered candidate pool and filters client-side (fallback for
	// deployments without native filtered vector search).
	NativeFilter bool `mapstructure:"native_filter" json:"native_filter"`

	// Per-call timeouts, milliseconds
	EmbedTimeoutMS     int `mapstructure:"embed_timeout_ms" json:"embed_timeout_ms"`
	SearchTimeoutMS    int `mapstructure:"search_timeout_ms" json:"search_timeout_ms"`
	SynthesisTimeoutMS int `mapstructure:"synthesis_timeout_ms" json:"synthesis_timeout_ms"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".soilwise")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use defaults
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Model defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("model_name", "qwen3:32b")
	viper.SetDefault("embed_model", "all-minilm")
	viper.SetDefault("embed_dim", DefaultEmbedDim)

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "soilwise")
	viper.SetDefault("postgres_password", "soilwise_dev_password")
	viper.SetDefault("postgres_db_name", "soilwise")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Redis defaults
	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("redis_user", "default")
	viper.SetDefault("redis_db", 0)
	viper.SetDefault("cache_ttl_sec", 3600)

	// Ingestion defaults
	viper.SetDefault("ingest_workers", 2)
	viper.SetDefault("ingest_queue_size", 64)
	viper.SetDefault("default_owner", "default")

	// Retrieval defaults
	viper.SetDefault("native_filter", true)

	// Timeout defaults
	viper.SetDefault("embed_timeout_ms", 30000)
	viper.SetDefault("search_timeout_ms", 10000)
	viper.SetDefault("synthesis_timeout_ms", 120000)
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a bug in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("ollama_host", "SOILWISE_OLLAMA_HOST")
	mustBind("model_name", "SOILWISE_MODEL_NAME")
	mustBind("embed_model", "SOILWISE_EMBED_MODEL")

	mustBind("redis_addr", "REDIS_ADDR")
	mustBind("redis_user", "REDIS_USER")
	mustBind("redis_password", "REDIS_PASSWORD")

	mustBind("ingest_workers", "SOILWISE_INGEST_WORKERS")
	mustBind("native_filter", "SOILWISE_NATIVE_FILTER")
	mustBind("default_owner", "SOILWISE_DEFAULT_OWNER")

	// NOTE: DATABASE_URL is read directly in parseDatabaseURL, not via Viper.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked to prevent substring matching;
// longer secrets show the first and last 2 characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisPassword = maskSecret(a.RedisPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// CacheTTL returns the answer cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// EmbedTimeout returns the per-call embedding timeout.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutMS) * time.Millisecond
}

// SearchTimeout returns the per-call vector search timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutMS) * time.Millisecond
}

// SynthesisTimeout returns the per-call answer synthesis timeout.
func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.SynthesisTimeoutMS) * time.Millisecond
}
