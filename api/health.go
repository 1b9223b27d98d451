package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/soilwise/soilwise/internal/log"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	pool   *pgxpool.Pool
	redis  redis.UniversalClient
	logger log.Logger
}

// NewHealthHandler creates a new health handler. pool is required for
// readiness; redis may be nil when the answer cache is disabled.
func NewHealthHandler(pool *pgxpool.Pool, redis redis.UniversalClient, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, redis: redis, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 OK if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness returns 200 OK if the document store is reachable. The cache is
// best effort, so an unreachable Redis does not fail readiness; it is only
// logged.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			h.logger.Warn("answer cache not reachable", "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
