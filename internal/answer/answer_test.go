package answer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/soilwise/soilwise/internal/llm"
	"github.com/soilwise/soilwise/internal/log"
	"github.com/soilwise/soilwise/internal/store"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) (pgvector.Vector, error) {
	if f.err != nil {
		return pgvector.Vector{}, f.err
	}
	return pgvector.NewVector(make([]float32, 4)), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int { return 4 }

type fakeSearcher struct {
	byPartition map[store.Partition][]store.SearchResult
	errFor      map[store.Partition]error

	mu           sync.Mutex
	limits       map[store.Partition]int
	hadDeadlines map[store.Partition]bool
}

func (f *fakeSearcher) Search(ctx context.Context, _ pgvector.Vector, partition store.Partition, _ string, limit int) ([]store.SearchResult, error) {
	f.mu.Lock()
	if f.limits == nil {
		f.limits = make(map[store.Partition]int)
		f.hadDeadlines = make(map[store.Partition]bool)
	}
	f.limits[partition] = limit
	_, f.hadDeadlines[partition] = ctx.Deadline()
	f.mu.Unlock()

	if err := f.errFor[partition]; err != nil {
		return nil, err
	}
	results := f.byPartition[partition]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

type fakeCache struct {
	entries map[string]string
	puts    map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string), puts: make(map[string]string)}
}

func (f *fakeCache) Get(_ context.Context, query string) (string, bool) {
	answer, ok := f.entries[query]
	return answer, ok
}

func (f *fakeCache) Put(_ context.Context, query, answer string) {
	f.puts[query] = answer
}

type fakeSynthesizer struct {
	response   string
	err        error
	lastPrompt string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func uploadResult(filename, content string, similarity float64) store.SearchResult {
	return store.SearchResult{Content: content, SourceFilename: filename, Partition: store.PartitionUserUpload, Similarity: similarity}
}

func corpusResult(filename, content string, similarity float64) store.SearchResult {
	return store.SearchResult{Content: content, SourceFilename: filename, Partition: store.PartitionKnowledgeBase, Similarity: similarity}
}

func TestRetrievePartitionPriority(t *testing.T) {
	searcher := &fakeSearcher{byPartition: map[store.Partition][]store.SearchResult{
		store.PartitionUserUpload: {
			uploadResult("upload.pdf", "upload chunk a", 0.6),
			uploadResult("upload.pdf", "upload chunk b", 0.5),
		},
		store.PartitionKnowledgeBase: {
			corpusResult("handbook.pdf", "corpus chunk", 0.99),
		},
	}}
	r := NewRetriever(searcher, &fakeEmbedder{}, 0, log.NewNop())

	results, err := r.Retrieve(context.Background(), "bearing capacity", "owner-1")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Retrieve() returned %d results, want 3", len(results))
	}
	// A knowledge-base chunk never outranks an upload chunk, regardless of
	// similarity.
	if results[0].Partition != store.PartitionUserUpload || results[1].Partition != store.PartitionUserUpload {
		t.Errorf("upload chunks not first: %+v", results)
	}
	if results[2].Partition != store.PartitionKnowledgeBase {
		t.Errorf("last result partition = %s", results[2].Partition)
	}

	if searcher.limits[store.PartitionUserUpload] != UserUploadLimit {
		t.Errorf("upload limit = %d, want %d", searcher.limits[store.PartitionUserUpload], UserUploadLimit)
	}
	if searcher.limits[store.PartitionKnowledgeBase] != KnowledgeBaseLimit {
		t.Errorf("corpus limit = %d, want %d", searcher.limits[store.PartitionKnowledgeBase], KnowledgeBaseLimit)
	}
}

func TestRetrieveBoundedTotal(t *testing.T) {
	many := func(partition store.Partition, n int) []store.SearchResult {
		results := make([]store.SearchResult, n)
		for i := range results {
			results[i] = store.SearchResult{Content: "chunk", SourceFilename: "f.pdf", Partition: partition}
		}
		return results
	}
	searcher := &fakeSearcher{byPartition: map[store.Partition][]store.SearchResult{
		store.PartitionUserUpload:    many(store.PartitionUserUpload, 20),
		store.PartitionKnowledgeBase: many(store.PartitionKnowledgeBase, 20),
	}}
	r := NewRetriever(searcher, &fakeEmbedder{}, 0, log.NewNop())

	results, err := r.Retrieve(context.Background(), "query", "owner-1")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) > UserUploadLimit+KnowledgeBaseLimit {
		t.Errorf("Retrieve() returned %d results, want at most %d", len(results), UserUploadLimit+KnowledgeBaseLimit)
	}
}

func TestRetrieveDegradesOnPartitionFailure(t *testing.T) {
	searcher := &fakeSearcher{
		byPartition: map[store.Partition][]store.SearchResult{
			store.PartitionKnowledgeBase: {corpusResult("handbook.pdf", "still here", 0.8)},
		},
		errFor: map[store.Partition]error{
			store.PartitionUserUpload: errors.New("connection refused"),
		},
	}
	r := NewRetriever(searcher, &fakeEmbedder{}, 0, log.NewNop())

	results, err := r.Retrieve(context.Background(), "query", "owner-1")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 1 || results[0].SourceFilename != "handbook.pdf" {
		t.Errorf("Retrieve() = %+v, want the surviving partition's result", results)
	}
}

func TestRetrieveBoundsEachPartitionSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	r := NewRetriever(searcher, &fakeEmbedder{}, 10*time.Second, log.NewNop())

	if _, err := r.Retrieve(context.Background(), "query", "owner-1"); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, partition := range []store.Partition{store.PartitionUserUpload, store.PartitionKnowledgeBase} {
		if !searcher.hadDeadlines[partition] {
			t.Errorf("search context for %s has no deadline", partition)
		}
	}
}

func TestRetrieveWithoutTimeoutLeavesContextUnbounded(t *testing.T) {
	searcher := &fakeSearcher{}
	r := NewRetriever(searcher, &fakeEmbedder{}, 0, log.NewNop())

	if _, err := r.Retrieve(context.Background(), "query", "owner-1"); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for partition, bounded := range searcher.hadDeadlines {
		if bounded {
			t.Errorf("search context for %s has a deadline with timeout disabled", partition)
		}
	}
}

func TestAssembleContext(t *testing.T) {
	results := []store.SearchResult{
		uploadResult("doc.pdf", "first chunk", 0.9),
		uploadResult("doc.pdf", "second chunk", 0.8),
		corpusResult("handbook.pdf", "corpus chunk", 0.7),
	}

	contextText, sources := assembleContext(results)
	want := "[Source: doc.pdf]\nfirst chunk\n\n[Source: doc.pdf]\nsecond chunk\n\n[Source: handbook.pdf]\ncorpus chunk"
	if contextText != want {
		t.Errorf("context = %q, want %q", contextText, want)
	}
	if len(sources) != 2 || sources[0] != "doc.pdf" || sources[1] != "handbook.pdf" {
		t.Errorf("sources = %v, want de-duplicated in first-seen order", sources)
	}
}

func TestBuildPrompt(t *testing.T) {
	history := make([]Turn, 7)
	for i := range history {
		history[i] = Turn{Role: "user", Content: "turn " + strings.Repeat("x", i+1)}
	}

	prompt := buildPrompt("What is CBR?", "[Source: a.pdf]\nCBR test text", history)

	if !strings.HasPrefix(prompt, "You are an expert AI assistant") {
		t.Error("prompt does not start with the instruction preamble")
	}
	if strings.Contains(prompt, "turn x\n") || strings.Contains(prompt, "turn xx\n") {
		t.Error("prompt contains history beyond the last 5 turns")
	}
	if !strings.Contains(prompt, "USER: turn xxxxxxx") {
		t.Error("prompt missing the most recent history turn with uppercase role")
	}
	if !strings.Contains(prompt, "RELEVANT CONTEXT FROM DOCUMENTS:") {
		t.Error("prompt missing context section")
	}
	if !strings.Contains(prompt, "USER QUESTION: What is CBR?") {
		t.Error("prompt missing the user question")
	}

	// Fixed section order: history before context before question.
	hIdx := strings.Index(prompt, "CONVERSATION HISTORY:")
	cIdx := strings.Index(prompt, "RELEVANT CONTEXT FROM DOCUMENTS:")
	qIdx := strings.Index(prompt, "USER QUESTION:")
	if !(hIdx < cIdx && cIdx < qIdx) {
		t.Errorf("section order wrong: history=%d context=%d question=%d", hIdx, cIdx, qIdx)
	}
}

func TestBuildPromptWithoutContext(t *testing.T) {
	prompt := buildPrompt("What is CBR?", "", nil)
	if !strings.Contains(prompt, "[No relevant documents found in the knowledge base]") {
		t.Error("prompt missing the empty-context marker")
	}
	if strings.Contains(prompt, "CONVERSATION HISTORY:") {
		t.Error("prompt has a history section for empty history")
	}
}

func newTestService(cache Cache, searcher Searcher, synth llm.Synthesizer) *Service {
	retriever := NewRetriever(searcher, &fakeEmbedder{}, 0, log.NewNop())
	return New(cache, retriever, synth, log.NewNop())
}

func TestAnswerCacheHit(t *testing.T) {
	cache := newFakeCache()
	cache.entries["what is cbr?"] = "Cached answer."
	synth := &fakeSynthesizer{response: "should not be called"}
	svc := newTestService(cache, &fakeSearcher{}, synth)

	resp, err := svc.Answer(context.Background(), "what is cbr?", nil, "owner-1")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !resp.Cached || resp.Answer != "Cached answer." {
		t.Errorf("Answer() = %+v, want cached response", resp)
	}
	if synth.lastPrompt != "" {
		t.Error("synthesizer called on a cache hit")
	}
}

func TestAnswerFullPath(t *testing.T) {
	cache := newFakeCache()
	searcher := &fakeSearcher{byPartition: map[store.Partition][]store.SearchResult{
		store.PartitionUserUpload: {uploadResult("report.pdf", "Bearing capacity is 150 kPa.", 0.9)},
	}}
	synth := &fakeSynthesizer{response: "<think>checking context</think>The bearing capacity is 150 kPa."}
	svc := newTestService(cache, searcher, synth)

	resp, err := svc.Answer(context.Background(), "bearing capacity?", nil, "owner-1")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.Cached {
		t.Error("fresh answer reported as cached")
	}
	if resp.Answer != "The bearing capacity is 150 kPa." {
		t.Errorf("Answer = %q, reasoning block not removed", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "report.pdf" {
		t.Errorf("Sources = %v", resp.Sources)
	}
	if !strings.Contains(synth.lastPrompt, "[Source: report.pdf]") {
		t.Error("retrieved context missing from prompt")
	}
	if got := cache.puts["bearing capacity?"]; got != "The bearing capacity is 150 kPa." {
		t.Errorf("cached answer = %q, want the sanitized answer", got)
	}
}

func TestAnswerSynthesisFailurePropagates(t *testing.T) {
	synth := &fakeSynthesizer{err: llm.ErrSynthesisFailed}
	svc := newTestService(newFakeCache(), &fakeSearcher{}, synth)

	_, err := svc.Answer(context.Background(), "query", nil, "owner-1")
	if !errors.Is(err, llm.ErrSynthesisFailed) {
		t.Fatalf("Answer() error = %v, want ErrSynthesisFailed", err)
	}
}

func TestAnswerDegradesWhenRetrievalUnavailable(t *testing.T) {
	cache := newFakeCache()
	synth := &fakeSynthesizer{response: "Answer from general knowledge."}
	retriever := NewRetriever(&fakeSearcher{}, &fakeEmbedder{err: errors.New("embedder offline")}, 0, log.NewNop())
	svc := New(cache, retriever, synth, log.NewNop())

	resp, err := svc.Answer(context.Background(), "query with no retrieval", nil, "owner-1")
	if err != nil {
		t.Fatalf("Answer() error = %v, retrieval failure must not fail the query", err)
	}
	if resp.Answer != "Answer from general knowledge." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", resp.Sources)
	}
	if !strings.Contains(synth.lastPrompt, "[No relevant documents found in the knowledge base]") {
		t.Error("prompt missing empty-context marker on degraded retrieval")
	}
}

func TestAnswerEmptyQuery(t *testing.T) {
	svc := newTestService(newFakeCache(), &fakeSearcher{}, &fakeSynthesizer{})
	if _, err := svc.Answer(context.Background(), "   ", nil, "owner-1"); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("Answer() error = %v, want ErrEmptyQuery", err)
	}
}
