package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validSSLModes are the PostgreSQL sslmode values accepted by pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for correctness. Called by Load
// immediately after unmarshalling (fail-fast).
func (c *Config) Validate() error {
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateIngest()
}

func (c *Config) validateModel() error {
	u, err := url.Parse(c.OllamaHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q (expected http(s)://host:port)", ErrInvalidOllamaHost, c.OllamaHost)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedModel) == "" {
		return fmt.Errorf("%w: embed_model must not be empty", ErrInvalidEmbedModel)
	}
	if c.EmbedDim < 1 || c.EmbedDim > 4096 {
		return fmt.Errorf("%w: %d (expected 1-4096)", ErrInvalidEmbedDim, c.EmbedDim)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (expected 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

func (c *Config) validateCache() error {
	if strings.TrimSpace(c.RedisAddr) == "" || !strings.Contains(c.RedisAddr, ":") {
		return fmt.Errorf("%w: %q (expected host:port)", ErrInvalidRedisAddr, c.RedisAddr)
	}
	if c.CacheTTLSec < 1 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidCacheTTL, c.CacheTTLSec)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.IngestWorkers < 1 || c.IngestWorkers > 64 {
		return fmt.Errorf("%w: %d (expected 1-64)", ErrInvalidWorkerCount, c.IngestWorkers)
	}
	if c.IngestQueueSize < 1 {
		return fmt.Errorf("%w: queue size %d (must be positive)", ErrInvalidWorkerCount, c.IngestQueueSize)
	}
	return nil
}
