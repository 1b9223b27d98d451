// Package answer orchestrates the query path: cache lookup, prioritized
// retrieval, prompt assembly, synthesis, and sanitization.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soilwise/soilwise/internal/llm"
	"github.com/soilwise/soilwise/internal/log"
	"github.com/soilwise/soilwise/internal/sanitize"
)

// ErrEmptyQuery reports a query with no content after trimming.
var ErrEmptyQuery = errors.New("query is empty")

// Cache is the best-effort answer cache the service consults. Both methods
// degrade silently on backend failure.
type Cache interface {
	Get(ctx context.Context, query string) (string, bool)
	Put(ctx context.Context, query, answer string)
}

// Response is a completed answer.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Cached  bool     `json:"cached"`
}

// Service answers queries against the indexed corpus.
type Service struct {
	cache       Cache
	retriever   *Retriever
	synthesizer llm.Synthesizer
	logger      log.Logger
}

// New creates an answer service.
func New(cache Cache, retriever *Retriever, synthesizer llm.Synthesizer, logger log.Logger) *Service {
	return &Service{
		cache:       cache,
		retriever:   retriever,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// Answer resolves one query for an owner. Retrieval and cache failures
// degrade gracefully; only an empty query or a synthesis failure is an
// error. Cached responses carry no source list since the cache stores
// answers alone.
func (s *Service) Answer(ctx context.Context, query string, history []Turn, ownerID string) (Response, error) {
	if strings.TrimSpace(query) == "" {
		return Response{}, ErrEmptyQuery
	}

	if cached, ok := s.cache.Get(ctx, query); ok {
		s.logger.Debug("answer served from cache", "owner_id", ownerID)
		return Response{Answer: cached, Sources: []string{}, Cached: true}, nil
	}

	results, err := s.retriever.Retrieve(ctx, query, ownerID)
	if err != nil {
		// Synthesis still proceeds on history and general knowledge.
		s.logger.Warn("retrieval degraded, answering without context", "error", err)
		results = nil
	}
	contextText, sources := assembleContext(results)
	if sources == nil {
		sources = []string{}
	}

	raw, err := s.synthesizer.Synthesize(ctx, buildPrompt(query, contextText, history))
	if err != nil {
		return Response{}, fmt.Errorf("synthesize answer: %w", err)
	}

	answer := sanitize.Clean(raw)
	s.cache.Put(ctx, query, answer)

	return Response{Answer: answer, Sources: sources, Cached: false}, nil
}
