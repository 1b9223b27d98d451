// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every long-lived component: the database
// pool, the Redis client, the ingestion worker pool, and the answer service.
// Setup builds them in dependency order; Close releases them in reverse.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/soilwise/soilwise/internal/answer"
	"github.com/soilwise/soilwise/internal/cache"
	"github.com/soilwise/soilwise/internal/config"
	"github.com/soilwise/soilwise/internal/embed"
	"github.com/soilwise/soilwise/internal/ingest"
	"github.com/soilwise/soilwise/internal/llm"
	"github.com/soilwise/soilwise/internal/log"
	"github.com/soilwise/soilwise/internal/store"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	DBPool *pgxpool.Pool
	Redis  redis.UniversalClient

	Store       *store.Store
	Embedder    embed.Provider
	Synthesizer llm.Synthesizer
	Cache       *cache.Answers
	Answer      *answer.Service
	Tracker     *ingest.Tracker
	Workers     *ingest.Workers

	cancel context.CancelFunc
}

// Close gracefully shuts down all resources. In-flight ingestions finish
// before the pool and connections are released.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.Workers != nil {
		a.Workers.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("closing redis client", "error", err)
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
