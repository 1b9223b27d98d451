package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
)

// ErrDimensionMismatch reports a model returning vectors of a width other
// than the one the store was provisioned for.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// initSampleText is embedded once on first use to verify the model serves
// vectors of the configured width before any real text is accepted.
const initSampleText = "dimension check"

// embedBatchConcurrency caps the number of in-flight embedding requests a
// single batch sends to the Ollama server.
const embedBatchConcurrency = 4

// Ollama generates embeddings through an Ollama server's /api/embeddings
// endpoint.
type Ollama struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client

	initOnce sync.Once
	initErr  error
}

// NewOllama creates an embedding provider backed by the given Ollama host and
// model. dimension is the vector width the backing store expects; responses
// of any other width are rejected.
func NewOllama(baseURL, model string, dimension int, timeout time.Duration) *Ollama {
	return &Ollama{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Dimension reports the configured vector width.
func (o *Ollama) Dimension() int {
	return o.dimension
}

// Embed generates an embedding for a single text. The first call runs a
// one-time initialization that embeds a fixed sample to verify the model's
// vector width; concurrent callers block on that single attempt, and its
// failure is returned to every call afterwards.
func (o *Ollama) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return pgvector.Vector{}, errors.New("cannot embed empty text")
	}
	if err := o.ensureReady(ctx); err != nil {
		return pgvector.Vector{}, err
	}
	return o.embedOne(ctx, text)
}

func (o *Ollama) ensureReady(ctx context.Context) error {
	o.initOnce.Do(func() {
		if _, err := o.embedOne(ctx, initSampleText); err != nil {
			o.initErr = fmt.Errorf("initialize embedding model %s: %w", o.model, err)
		}
	})
	return o.initErr
}

func (o *Ollama) embedOne(ctx context.Context, text string) (pgvector.Vector, error) {
	payload, err := json.Marshal(embedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pgvector.Vector{}, fmt.Errorf("ollama embeddings: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pgvector.Vector{}, fmt.Errorf("decode embed response: %w", err)
	}

	if len(result.Embedding) == 0 {
		return pgvector.Vector{}, errors.New("ollama embeddings: empty embedding returned")
	}
	if len(result.Embedding) != o.dimension {
		return pgvector.Vector{}, fmt.Errorf("%w: model %s returned %d dimensions, store expects %d",
			ErrDimensionMismatch, o.model, len(result.Embedding), o.dimension)
	}

	return pgvector.NewVector(result.Embedding), nil
}

// EmbedBatch generates embeddings for multiple texts, preserving input order.
// Requests run concurrently up to embedBatchConcurrency; the first failure
// cancels the rest and fails the batch.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := o.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}
