package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/soilwise/soilwise/internal/log"
)

// DefaultOverFetchFactor is how many times the requested limit the fallback
// search path fetches before filtering client side.
const DefaultOverFetchFactor = 20

// SearchConfig controls how partition and owner filters are applied.
type SearchConfig struct {
	// NativeFilter applies partition and owner predicates in SQL. When
	// false the store fetches a global candidate set and filters client
	// side, the behavior of deployments whose index predates filtered
	// ANN support.
	NativeFilter bool

	// OverFetchFactor sizes the candidate set for the client-side path.
	// Zero means DefaultOverFetchFactor.
	OverFetchFactor int
}

// querier is the subset of pgxpool.Pool the store uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store persists and retrieves chunks.
type Store struct {
	db     querier
	cfg    SearchConfig
	logger log.Logger
}

// New creates a Store over the given connection pool.
func New(pool *pgxpool.Pool, cfg SearchConfig, logger log.Logger) *Store {
	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = DefaultOverFetchFactor
	}
	return &Store{db: pool, cfg: cfg, logger: logger}
}

// InsertChunks writes all chunks of one document in a single batch. Chunks
// without an ID are assigned one.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range chunks {
		if chunks[i].ID == uuid.Nil {
			chunks[i].ID = uuid.New()
		}
		batch.Queue(
			`INSERT INTO chunks (id, content, embedding, source_filename, owner_id, partition, chunk_index, total_chunks)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			chunks[i].ID, chunks[i].Content, chunks[i].Embedding,
			chunks[i].SourceFilename, chunks[i].OwnerID, string(chunks[i].Partition),
			chunks[i].ChunkIndex, chunks[i].TotalChunks,
		)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert chunk %d of %d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// Search returns up to limit chunks nearest to the query vector within one
// partition, scoped to the owner, ordered by descending similarity.
func (s *Store) Search(ctx context.Context, vec pgvector.Vector, partition Partition, ownerID string, limit int) ([]SearchResult, error) {
	if !partition.Valid() {
		return nil, fmt.Errorf("unknown partition %q", partition)
	}
	if limit <= 0 {
		return nil, nil
	}

	if s.cfg.NativeFilter {
		return s.searchNative(ctx, vec, partition, ownerID, limit)
	}
	return s.searchOverFetch(ctx, vec, partition, ownerID, limit)
}

func (s *Store) searchNative(ctx context.Context, vec pgvector.Vector, partition Partition, ownerID string, limit int) ([]SearchResult, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, content, source_filename, partition, chunk_index,
		        1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 WHERE partition = $2 AND owner_id = $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, string(partition), ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	return scanResults(rows, limit, nil)
}

func (s *Store) searchOverFetch(ctx context.Context, vec pgvector.Vector, partition Partition, ownerID string, limit int) ([]SearchResult, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, content, source_filename, partition, chunk_index, owner_id,
		        1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, limit*s.cfg.OverFetchFactor,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	keep := func(r SearchResult, rowOwner string) bool {
		return r.Partition == partition && rowOwner == ownerID
	}
	return scanResultsWithOwner(rows, limit, keep)
}

// scanResults reads similarity-ordered rows without an owner column.
func scanResults(rows pgx.Rows, limit int, keep func(SearchResult) bool) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var partition string
		if err := rows.Scan(&r.ID, &r.Content, &r.SourceFilename, &partition, &r.ChunkIndex, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.Partition = Partition(partition)
		if keep != nil && !keep(r) {
			continue
		}
		results = append(results, r)
		if len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

// scanResultsWithOwner reads rows from the over-fetch query, which carries
// owner_id so the filter can be applied client side.
func scanResultsWithOwner(rows pgx.Rows, limit int, keep func(SearchResult, string) bool) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var partition, rowOwner string
		if err := rows.Scan(&r.ID, &r.Content, &r.SourceFilename, &partition, &r.ChunkIndex, &rowOwner, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.Partition = Partition(partition)
		if !keep(r, rowOwner) {
			continue
		}
		results = append(results, r)
		if len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

// DeleteBySource removes every chunk derived from one source document, scoped
// to an owner. Rows written by earlier ingesters stored a full path as
// provenance, so a bare filename also matches any path ending in it. Returns
// ErrNotFound when nothing matched.
func (s *Store) DeleteBySource(ctx context.Context, ownerID, filename string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM chunks
		 WHERE owner_id = $1 AND (source_filename = $2 OR source_filename LIKE '%/' || $2)`,
		ownerID, filename,
	)
	if err != nil {
		return 0, fmt.Errorf("delete chunks by source: %w", err)
	}

	deleted := tag.RowsAffected()
	if deleted == 0 {
		return 0, fmt.Errorf("no chunks for %q: %w", filename, ErrNotFound)
	}

	s.logger.Info("deleted chunks by source", "filename", filename, "owner_id", ownerID, "count", deleted)
	return deleted, nil
}

// CountBySource reports how many chunks a source document currently has.
func (s *Store) CountBySource(ctx context.Context, ownerID, filename string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE owner_id = $1 AND source_filename = $2`,
		ownerID, filename,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks by source: %w", err)
	}
	return count, nil
}
