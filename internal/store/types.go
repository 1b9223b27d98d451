// Package store persists chunk records in Postgres and serves
// similarity-ordered retrieval over pgvector.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Partition segregates chunks by provenance for priority ordering at
// retrieval time. Assigned at ingestion, never changed.
type Partition string

const (
	// PartitionUserUpload holds chunks from documents a user uploaded.
	PartitionUserUpload Partition = "user_upload"

	// PartitionKnowledgeBase holds chunks from the curated corpus.
	PartitionKnowledgeBase Partition = "knowledge_base"
)

// Valid reports whether p is one of the known partitions.
func (p Partition) Valid() bool {
	return p == PartitionUserUpload || p == PartitionKnowledgeBase
}

// ErrNotFound reports an operation that matched no rows.
var ErrNotFound = errors.New("not found")

// Chunk is one stored span of document text with its embedding.
type Chunk struct {
	ID             uuid.UUID
	Content        string
	Embedding      pgvector.Vector
	SourceFilename string
	OwnerID        string
	Partition      Partition
	ChunkIndex     int
	TotalChunks    int
	CreatedAt      time.Time
}

// SearchResult is a chunk annotated with its similarity to a query vector.
// Similarity is cosine based, in [0, 1], higher is closer.
type SearchResult struct {
	ID             uuid.UUID
	Content        string
	SourceFilename string
	Partition      Partition
	ChunkIndex     int
	Similarity     float64
}
