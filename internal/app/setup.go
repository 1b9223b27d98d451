package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/soilwise/soilwise/db"
	"github.com/soilwise/soilwise/internal/answer"
	"github.com/soilwise/soilwise/internal/cache"
	"github.com/soilwise/soilwise/internal/config"
	"github.com/soilwise/soilwise/internal/embed"
	"github.com/soilwise/soilwise/internal/ingest"
	"github.com/soilwise/soilwise/internal/llm"
	"github.com/soilwise/soilwise/internal/log"
	"github.com/soilwise/soilwise/internal/store"
)

// Setup creates and initializes the application. The returned App owns every
// resource it holds; call Close() to release them. The ingestion worker pool
// is already running when Setup returns.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	a.Redis = provideRedis(cfg)

	a.Store = store.New(pool, store.SearchConfig{NativeFilter: cfg.NativeFilter}, logger)
	a.Embedder = embed.NewOllama(cfg.OllamaHost, cfg.EmbedModel, cfg.EmbedDim, cfg.EmbedTimeout())
	a.Synthesizer = llm.NewOllama(cfg.OllamaHost, cfg.ModelName, cfg.SynthesisTimeout())
	a.Cache = cache.New(a.Redis, cfg.CacheTTL(), logger)

	retriever := answer.NewRetriever(a.Store, a.Embedder, cfg.SearchTimeout(), logger)
	a.Answer = answer.New(a.Cache, retriever, a.Synthesizer, logger)

	a.Tracker = ingest.NewTracker()
	pipeline := ingest.NewPipeline(a.Store, a.Embedder, logger)
	a.Workers = ingest.NewWorkers(pipeline, a.Tracker, cfg.IngestWorkers, cfg.IngestQueueSize, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Workers.Start(workerCtx)

	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideRedis creates the Redis client for the answer cache. The cache is
// best effort, so an unreachable Redis does not fail Setup.
func provideRedis(cfg *config.Config) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUser,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
