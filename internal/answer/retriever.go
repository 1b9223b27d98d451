package answer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/soilwise/soilwise/internal/embed"
	"github.com/soilwise/soilwise/internal/log"
	"github.com/soilwise/soilwise/internal/store"
)

// Per-partition result limits. User uploads always rank before the curated
// corpus, so together a query sees at most eight chunks of context.
const (
	UserUploadLimit    = 5
	KnowledgeBaseLimit = 3
)

// Searcher is the slice of the document store the retriever reads from.
type Searcher interface {
	Search(ctx context.Context, vec pgvector.Vector, partition store.Partition, ownerID string, limit int) ([]store.SearchResult, error)
}

// Retriever runs both partition searches for a query and merges them with
// user uploads first.
type Retriever struct {
	searcher Searcher
	embedder embed.Provider
	timeout  time.Duration
	logger   log.Logger
}

// NewRetriever creates a retriever over the given store and embedder.
// timeout bounds each partition search; zero means no bound beyond the
// request context.
func NewRetriever(searcher Searcher, embedder embed.Provider, timeout time.Duration, logger log.Logger) *Retriever {
	return &Retriever{searcher: searcher, embedder: embedder, timeout: timeout, logger: logger}
}

// Retrieve embeds the query and searches both partitions concurrently.
// Within the merged result user-upload chunks precede knowledge-base chunks;
// each group keeps its own similarity order. A failed or timed-out partition
// search degrades to an empty group rather than failing the query or
// cancelling the sibling search; only a failed query embedding is an error.
func (r *Retriever) Retrieve(ctx context.Context, query, ownerID string) ([]store.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var uploads, corpus []store.SearchResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		uploads = r.searchPartition(ctx, vec, store.PartitionUserUpload, ownerID, UserUploadLimit)
	}()
	go func() {
		defer wg.Done()
		corpus = r.searchPartition(ctx, vec, store.PartitionKnowledgeBase, ownerID, KnowledgeBaseLimit)
	}()
	wg.Wait()

	merged := make([]store.SearchResult, 0, len(uploads)+len(corpus))
	merged = append(merged, uploads...)
	merged = append(merged, corpus...)
	return merged, nil
}

func (r *Retriever) searchPartition(ctx context.Context, vec pgvector.Vector, partition store.Partition, ownerID string, limit int) []store.SearchResult {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	results, err := r.searcher.Search(ctx, vec, partition, ownerID, limit)
	if err != nil {
		r.logger.Warn("partition search failed, degrading to empty results",
			"partition", string(partition), "error", err)
		return nil
	}
	return results
}
