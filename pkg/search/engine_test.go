package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/store/memory"
)

type stubEmbedder struct {
	vectors map[string][]float32
	// fallback is returned for unknown inputs, e.g. free-form queries.
	fallback []float32
	err      error
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if vec, ok := s.vectors[string(input)]; ok {
		return vec, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return nil, fmt.Errorf("no vector for %q", string(input))
}

func (s *stubEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec, err := s.GenerateEmbedding(ctx, input)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

type stubReranker struct {
	scores map[string]float64
	err    error
	calls  int
}

func (s *stubReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(documents))
	for i, doc := range documents {
		out[i] = s.scores[doc]
	}
	return out, nil
}

func seedGraph(t *testing.T) (*memory.GraphMemoryStore, *knowledge.Node, *knowledge.Node) {
	t.Helper()
	graph := memory.NewGraphMemoryStore()

	redis := &knowledge.Node{
		ID: "D-aaaa1111", Kind: knowledge.KindDecision,
		Description: "use Redis for caching", Rationale: "fast reads",
	}
	queue := &knowledge.Node{
		ID: "D-bbbb2222", Kind: knowledge.KindDecision,
		Description: "use RabbitMQ for job dispatch", Rationale: "durable queues",
	}
	for _, node := range []*knowledge.Node{redis, queue} {
		if err := graph.CreateNode(context.Background(), node); err != nil {
			t.Fatalf("seeding node: %v", err)
		}
	}
	return graph, redis, queue
}

func TestSearchFusesGraphAndVectorChannels(t *testing.T) {
	graph, redis, queue := seedGraph(t)

	embedder := &stubEmbedder{
		vectors: map[string][]float32{
			redis.Text(): {1, 0},
			queue.Text(): {0, 1},
		},
		fallback: []float32{1, 0},
	}

	engine := NewEngine(graph, embedder, nil)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	results, metrics, err := engine.Search(context.Background(), "redis caching decisions")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected results")
	}
	// The Redis node is found by both channels and must rank first.
	if results[0].NodeID != redis.ID {
		t.Fatalf("expected %s first, got %s", redis.ID, results[0].NodeID)
	}
	if metrics.GraphResults == 0 || metrics.VectorResults == 0 {
		t.Fatalf("expected both channels to contribute: %+v", metrics)
	}
	if metrics.CacheHit {
		t.Fatalf("first query must be a cache miss")
	}
}

func TestSearchCacheShortCircuits(t *testing.T) {
	graph, redis, queue := seedGraph(t)
	embedder := &stubEmbedder{
		vectors: map[string][]float32{
			redis.Text(): {1, 0},
			queue.Text(): {0, 1},
		},
		fallback: []float32{1, 0},
	}

	engine := NewEngine(graph, embedder, nil)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	first, _, err := engine.Search(context.Background(), "redis caching")
	if err != nil {
		t.Fatalf("first search: %v", err)
	}

	// Break the embedder; a cache hit must not touch it.
	embedder.err = fmt.Errorf("embedder down")
	second, metrics, err := engine.Search(context.Background(), "redis caching")
	if err != nil {
		t.Fatalf("cached search: %v", err)
	}
	if !metrics.CacheHit {
		t.Fatalf("expected cache hit")
	}
	if len(second) != len(first) {
		t.Fatalf("cached results differ: %d vs %d", len(second), len(first))
	}
}

func TestSearchDegradesVectorChannelOnFailure(t *testing.T) {
	graph, redis, queue := seedGraph(t)
	embedder := &stubEmbedder{
		vectors: map[string][]float32{
			redis.Text(): {1, 0},
			queue.Text(): {0, 1},
		},
		fallback: []float32{1, 0},
	}

	engine := NewEngine(graph, embedder, nil)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Query embedding fails after the index is built.
	embedder.err = fmt.Errorf("embedding service down")

	results, metrics, err := engine.Search(context.Background(), "redis caching")
	if err != nil {
		t.Fatalf("search must not fail when one channel degrades: %v", err)
	}
	if metrics.VectorResults != 0 {
		t.Fatalf("expected empty vector channel, got %d", metrics.VectorResults)
	}
	if metrics.GraphResults == 0 || len(results) == 0 {
		t.Fatalf("graph channel must still answer")
	}
}

func TestSearchDoesNotCacheFullyDegradedQueries(t *testing.T) {
	graph, redis, queue := seedGraph(t)
	embedder := &stubEmbedder{
		vectors: map[string][]float32{
			redis.Text(): {1, 0},
			queue.Text(): {0, 1},
		},
		fallback: []float32{1, 0},
	}

	engine := NewEngine(graph, embedder, nil)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Both channels go down at once.
	graph.FailKeywordSearch = true
	embedder.err = fmt.Errorf("embedding service down")

	first, metrics, err := engine.Search(context.Background(), "redis caching")
	if err != nil {
		t.Fatalf("degraded search must not fail: %v", err)
	}
	if len(first) != 0 || metrics.GraphResults != 0 || metrics.VectorResults != 0 {
		t.Fatalf("expected empty results from a full outage: %+v", metrics)
	}

	// Both backends recover; the empty answer must not have stuck.
	graph.FailKeywordSearch = false
	embedder.err = nil

	second, metrics, err := engine.Search(context.Background(), "redis caching")
	if err != nil {
		t.Fatalf("recovered search: %v", err)
	}
	if metrics.CacheHit {
		t.Fatalf("outage result must not be served from cache")
	}
	if len(second) == 0 {
		t.Fatalf("expected results after recovery")
	}
}

func TestSearchRerankerOrdersFinalResults(t *testing.T) {
	graph, redis, queue := seedGraph(t)
	embedder := &stubEmbedder{
		vectors: map[string][]float32{
			redis.Text(): {1, 0},
			queue.Text(): {0, 1},
		},
		fallback: []float32{0.7, 0.7},
	}
	reranker := &stubReranker{scores: map[string]float64{
		redis.Text(): 0.1,
		queue.Text(): 0.9,
	}}

	engine := NewEngine(graph, embedder, reranker)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	results, _, err := engine.Search(context.Background(), "queue caching")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if reranker.calls != 1 {
		t.Fatalf("expected 1 rerank call, got %d", reranker.calls)
	}
	if len(results) < 2 {
		t.Fatalf("expected both nodes, got %d", len(results))
	}
	if results[0].NodeID != queue.ID {
		t.Fatalf("reranker order ignored: got %s first", results[0].NodeID)
	}
	if results[0].RerankScore != 0.9 {
		t.Fatalf("expected rerank score 0.9, got %f", results[0].RerankScore)
	}
}

func TestSearchRerankerFailureKeepsFusedOrder(t *testing.T) {
	graph, redis, queue := seedGraph(t)
	embedder := &stubEmbedder{
		vectors: map[string][]float32{
			redis.Text(): {1, 0},
			queue.Text(): {0, 1},
		},
		fallback: []float32{1, 0},
	}
	reranker := &stubReranker{err: fmt.Errorf("rerank service down")}

	engine := NewEngine(graph, embedder, reranker)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	results, _, err := engine.Search(context.Background(), "redis caching")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected fused results despite reranker failure")
	}
	if results[0].NodeID != redis.ID {
		t.Fatalf("expected fused order to stand, got %s first", results[0].NodeID)
	}
}

func TestSearchEmptyIndexStillAnswersFromGraph(t *testing.T) {
	graph, _, _ := seedGraph(t)
	embedder := &stubEmbedder{fallback: []float32{1, 0}}

	// No Refresh: the vector snapshot is empty.
	engine := NewEngine(graph, embedder, nil)

	results, metrics, err := engine.Search(context.Background(), "redis caching")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if metrics.VectorResults != 0 {
		t.Fatalf("expected no vector results, got %d", metrics.VectorResults)
	}
	if len(results) == 0 {
		t.Fatalf("graph channel should still answer")
	}
}
