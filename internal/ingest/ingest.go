// Package ingest turns uploaded documents into stored, searchable chunks.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/soilwise/soilwise/internal/chunk"
	"github.com/soilwise/soilwise/internal/embed"
	"github.com/soilwise/soilwise/internal/extract"
	"github.com/soilwise/soilwise/internal/log"
	"github.com/soilwise/soilwise/internal/store"
)

// MinTextLength is the shortest extracted text accepted for ingestion.
// Anything shorter is treated as a scanned or otherwise non-text document.
const MinTextLength = 10

// Sentinels callers classify ingestion failures with.
var (
	ErrUnsupportedFormat = extract.ErrUnsupportedFormat
	ErrEmptyDocument     = extract.ErrEmptyDocument
)

// ChunkInserter is the slice of the document store the pipeline writes to.
type ChunkInserter interface {
	InsertChunks(ctx context.Context, chunks []store.Chunk) error
}

// Request describes one document to ingest.
type Request struct {
	Filename  string
	Content   []byte
	OwnerID   string
	Partition store.Partition
}

// Result summarizes a completed ingestion.
type Result struct {
	ChunksCreated   int
	TotalCharacters int
}

// Pipeline runs extraction, chunking, embedding and bulk insertion for one
// document at a time.
type Pipeline struct {
	inserter   ChunkInserter
	embedder   embed.Provider
	targetSize int
	overlap    int
	logger     log.Logger
}

// NewPipeline creates an ingestion pipeline using the default chunk geometry.
func NewPipeline(inserter ChunkInserter, embedder embed.Provider, logger log.Logger) *Pipeline {
	return &Pipeline{
		inserter:   inserter,
		embedder:   embedder,
		targetSize: chunk.DefaultTargetSize,
		overlap:    chunk.DefaultOverlap,
		logger:     logger,
	}
}

// Ingest processes one document end to end. Chunks reach the store only after
// every chunk embedded successfully, so a document is either fully indexed or
// absent.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Result, error) {
	if !req.Partition.Valid() {
		return Result{}, fmt.Errorf("unknown partition %q", req.Partition)
	}

	text, err := extract.Text(req.Filename, req.Content, p.logger)
	if err != nil {
		return Result{}, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinTextLength {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyDocument, req.Filename)
	}

	pieces := chunk.Split(text, p.targetSize, p.overlap)
	if len(pieces) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyDocument, req.Filename)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks of %s: %w", req.Filename, err)
	}

	chunks := make([]store.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = store.Chunk{
			Content:        piece,
			Embedding:      vectors[i],
			SourceFilename: req.Filename,
			OwnerID:        req.OwnerID,
			Partition:      req.Partition,
			ChunkIndex:     i,
			TotalChunks:    len(pieces),
		}
	}

	if err := p.inserter.InsertChunks(ctx, chunks); err != nil {
		return Result{}, fmt.Errorf("store chunks of %s: %w", req.Filename, err)
	}

	p.logger.Info("document ingested",
		"filename", req.Filename,
		"partition", string(req.Partition),
		"chunks", len(chunks),
		"characters", utf8.RuneCountInString(text),
	)

	return Result{
		ChunksCreated:   len(chunks),
		TotalCharacters: utf8.RuneCountInString(text),
	}, nil
}
