// Package cache stores previously synthesized answers keyed by a normalized
// query fingerprint. The cache is strictly best effort: an unreachable
// backend degrades to a miss on read and a drop on write, never an error.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soilwise/soilwise/internal/log"
)

// DefaultTTL is how long a cached answer stays valid.
const DefaultTTL = time.Hour

const keyPrefix = "answer:"

// Answers caches synthesized answers in Redis.
type Answers struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger log.Logger
}

// New creates an answer cache over the given Redis client. A non-positive
// ttl falls back to DefaultTTL.
func New(client redis.UniversalClient, ttl time.Duration, logger log.Logger) *Answers {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Answers{client: client, ttl: ttl, logger: logger}
}

// Key derives the cache key for a query. Queries differing only by case or
// surrounding whitespace collapse to the same key.
func Key(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return keyPrefix + hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached answer for a query, or ok=false on a miss. Backend
// failures are logged and reported as misses.
func (a *Answers) Get(ctx context.Context, query string) (string, bool) {
	answer, err := a.client.Get(ctx, Key(query)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		a.logger.Warn("answer cache read failed, treating as miss", "error", err)
		return "", false
	}
	return answer, true
}

// Put stores an answer for a query. Backend failures are logged and the
// write is dropped.
func (a *Answers) Put(ctx context.Context, query, answer string) {
	if err := a.client.Set(ctx, Key(query), answer, a.ttl).Err(); err != nil {
		a.logger.Warn("answer cache write failed, dropping entry", "error", err)
	}
}
