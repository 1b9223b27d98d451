// Package embed turns text into dense vectors for similarity search.
package embed

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

// Provider generates embeddings for text. Implementations must return vectors
// of a single fixed dimension for the lifetime of the provider.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)

	// EmbedBatch generates embeddings for multiple texts, preserving input
	// order. Any single failure fails the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)

	// Dimension reports the width of vectors this provider produces.
	Dimension() int
}
