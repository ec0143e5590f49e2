package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lorekeep/lorekeep/pkg/ai"
	"github.com/lorekeep/lorekeep/pkg/breaker"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/store/memory"
)

type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	vec, ok := s.vectors[string(input)]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", string(input))
	}
	return vec, nil
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

type stubCompleter struct {
	response ai.RelationshipClassification
	err      error
	calls    atomic.Int64
}

func (s *stubCompleter) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (s *stubCompleter) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	*(out.(*ai.RelationshipClassification)) = s.response
	return nil
}

func seedNodes(t *testing.T, graph *memory.GraphMemoryStore, nodes ...*knowledge.Node) {
	t.Helper()
	for _, node := range nodes {
		if err := graph.CreateNode(context.Background(), node); err != nil {
			t.Fatalf("seeding node %s: %v", node.ID, err)
		}
	}
}

func TestEnhanceOverwritesSemanticEdges(t *testing.T) {
	a := decisionNode("D-aaaa1111", "use Redis for caching", "fast reads")
	b := decisionNode("D-bbbb2222", "chose Redis over Memcached", "richer types")

	edge := &knowledge.Edge{
		SourceID: a.ID, TargetID: b.ID,
		Type: knowledge.RelationSemanticallySimilar, Weight: 0.486,
	}
	other := &knowledge.Edge{
		SourceID: a.ID, TargetID: b.ID,
		Type: knowledge.RelationReferences, Weight: 1.0,
	}

	completer := &stubCompleter{response: ai.RelationshipClassification{
		RelationshipType: "ALTERNATIVE_TO",
		Confidence:       0.9,
		Reasoning:        "both pick a cache backend",
	}}

	result := enhanceWithModel(
		context.Background(), completer, breaker.New(breaker.Options{}),
		[]*knowledge.Edge{edge, other},
		[]*knowledge.Node{a, b}, 4,
	)

	if result.Enhanced != 1 {
		t.Fatalf("expected 1 enhanced edge, got %d", result.Enhanced)
	}
	if completer.calls.Load() != 1 {
		t.Fatalf("expected 1 model call, got %d", completer.calls.Load())
	}
	if edge.Type != knowledge.RelationAlternativeTo || edge.Weight != 0.9 {
		t.Fatalf("edge not overwritten: %s %f", edge.Type, edge.Weight)
	}
	if edge.Metadata["llm_classified"] != true || edge.Metadata["reasoning"] == "" {
		t.Fatalf("edge metadata missing: %v", edge.Metadata)
	}
	if other.Type != knowledge.RelationReferences || other.Metadata != nil {
		t.Fatalf("non-semantic edge must stay untouched")
	}
}

func TestEnhanceLeavesEdgeOnInvalidVerdict(t *testing.T) {
	a := decisionNode("D-aaaa1111", "use Redis for caching", "x")
	b := decisionNode("D-bbbb2222", "chose Redis over Memcached", "y")
	edge := &knowledge.Edge{
		SourceID: a.ID, TargetID: b.ID,
		Type: knowledge.RelationSemanticallySimilar, Weight: 0.486,
	}

	// SIMILAR_TO is a real relation type but not a classifiable one.
	completer := &stubCompleter{response: ai.RelationshipClassification{
		RelationshipType: "SIMILAR_TO",
		Confidence:       0.9,
	}}

	result := enhanceWithModel(
		context.Background(), completer, breaker.New(breaker.Options{}),
		[]*knowledge.Edge{edge}, []*knowledge.Node{a, b}, 4,
	)

	if result.Failed != 1 || result.Enhanced != 0 {
		t.Fatalf("expected 1 failed, got %+v", result)
	}
	if edge.Type != knowledge.RelationSemanticallySimilar || edge.Weight != 0.486 || edge.Metadata != nil {
		t.Fatalf("edge must stay untouched on invalid verdict: %s %f", edge.Type, edge.Weight)
	}
}

func TestEnhanceShortCircuitsWhenBreakerOpen(t *testing.T) {
	a := decisionNode("D-aaaa1111", "use Redis for caching", "x")
	b := decisionNode("D-bbbb2222", "chose Redis over Memcached", "y")
	edge := &knowledge.Edge{
		SourceID: a.ID, TargetID: b.ID,
		Type: knowledge.RelationSemanticallySimilar, Weight: 0.486,
	}

	cb := breaker.New(breaker.Options{MaxTimeouts: 1})
	_ = cb.Do(context.Background(), func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	if !cb.Open() {
		t.Fatalf("breaker should be open")
	}

	completer := &stubCompleter{}
	result := enhanceWithModel(
		context.Background(), completer, cb,
		[]*knowledge.Edge{edge}, []*knowledge.Node{a, b}, 4,
	)

	if result.ShortCircuited != 1 {
		t.Fatalf("expected 1 short-circuited, got %+v", result)
	}
	if completer.calls.Load() != 0 {
		t.Fatalf("completer must not be called when breaker is open")
	}
	if edge.Type != knowledge.RelationSemanticallySimilar {
		t.Fatalf("edge must stay untouched")
	}
}

func TestPipelineFullRunPersistsDedupedEdges(t *testing.T) {
	graph := memory.NewGraphMemoryStore()
	target := patternNode("P-aaaa0001", "Redis caching layer", "wrap calls in a read-through cache")
	source := decisionNode("D-bbbb0001", "Session storage depends on Redis caching layer.", "keeps lookups fast")
	citing := decisionNode("D-cccc0001", "Superseded by P-aaaa0001 after the benchmark", "measured")
	seedNodes(t, graph, target, source, citing)

	embedder := &stubEmbedder{vectors: map[string][]float32{
		target.Text(): {1, 0, 0},
		source.Text(): {0, 1, 0},
		citing.Text(): {0, 0, 1},
	}}

	dir := t.TempDir()
	pipeline := NewPipeline(graph, embedder, nil, nil, Options{
		Mode:       ModeFull,
		StatePath:  filepath.Join(dir, "state.json"),
		ReportPath: filepath.Join(dir, "report.json"),
	})

	report, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.EdgesByLayer.ExplicitReferences != 1 {
		t.Fatalf("expected 1 explicit reference, got %d", report.EdgesByLayer.ExplicitReferences)
	}
	if report.EdgesByLayer.CrossReferences != 1 {
		t.Fatalf("expected 1 cross-reference, got %d", report.EdgesByLayer.CrossReferences)
	}
	if report.EdgesByLayer.SemanticSimilarity != 0 {
		t.Fatalf("expected no semantic edges for orthogonal vectors, got %d", report.EdgesByLayer.SemanticSimilarity)
	}
	if report.Statistics.TotalEdgesCreated != 2 {
		t.Fatalf("expected 2 edges created, got %d", report.Statistics.TotalEdgesCreated)
	}
	if got := len(graph.Edges()); got != 2 {
		t.Fatalf("expected 2 stored edges, got %d", got)
	}

	state := LoadState(filepath.Join(dir, "state.json"))
	if state.LastRunTimestamp.IsZero() || state.TotalEdges != 2 || state.Mode != ModeFull {
		t.Fatalf("unexpected state: %+v", state)
	}
	if _, err := os.Stat(filepath.Join(dir, "report.json")); err != nil {
		t.Fatalf("report file missing: %v", err)
	}
}

func TestPipelineFullRunIsIdempotent(t *testing.T) {
	graph := memory.NewGraphMemoryStore()
	target := patternNode("P-aaaa0001", "Redis caching layer", "wrap calls in a read-through cache")
	source := decisionNode("D-bbbb0001", "Session storage depends on Redis caching layer.", "keeps lookups fast")
	seedNodes(t, graph, target, source)

	embedder := &stubEmbedder{vectors: map[string][]float32{
		target.Text(): {1, 0},
		source.Text(): {0, 1},
	}}

	pipeline := NewPipeline(graph, embedder, nil, nil, Options{Mode: ModeFull})

	if _, err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	after := len(graph.Edges())

	if _, err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := len(graph.Edges()); got != after {
		t.Fatalf("second run grew the edge set from %d to %d", after, got)
	}
}

func TestPipelineIncrementalSkipsExistingPairs(t *testing.T) {
	graph := memory.NewGraphMemoryStore()
	oldA := decisionNode("D-aaaa1111", "use Redis for session caching", "fast")
	oldB := decisionNode("D-bbbb2222", "use Redis for query result caching", "fast too")
	newC := decisionNode("D-cccc3333", "use Redis for rate limit counters", "shared state")

	cutoff := time.Now().UTC()
	oldA.CreatedAt = cutoff.Add(-2 * time.Hour)
	oldB.CreatedAt = cutoff.Add(-time.Hour)
	newC.CreatedAt = cutoff.Add(time.Hour)
	seedNodes(t, graph, oldA, oldB, newC)

	// Identical vectors: every pair is a semantic candidate.
	embedder := &stubEmbedder{vectors: map[string][]float32{
		oldA.Text(): {1, 0},
		oldB.Text(): {1, 0},
		newC.Text(): {1, 0},
	}}

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	if err := SaveState(statePath, &State{LastRunTimestamp: cutoff, Mode: ModeFull}); err != nil {
		t.Fatalf("seeding state: %v", err)
	}

	pipeline := NewPipeline(graph, embedder, nil, nil, Options{
		Mode:      ModeIncremental,
		StatePath: statePath,
	})
	report, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Statistics.NodesProcessed != 1 {
		t.Fatalf("expected 1 new node processed, got %d", report.Statistics.NodesProcessed)
	}

	for _, edge := range graph.Edges() {
		if edge.SourceID != newC.ID && edge.TargetID != newC.ID {
			t.Fatalf("edge between existing nodes must not be created: %s -> %s", edge.SourceID, edge.TargetID)
		}
	}
	if len(graph.Edges()) == 0 {
		t.Fatalf("expected edges touching the new node")
	}
}

func TestPipelineIncrementalWithoutStateRunsFull(t *testing.T) {
	graph := memory.NewGraphMemoryStore()
	target := patternNode("P-aaaa0001", "Redis caching layer", "wrap calls in a read-through cache")
	source := decisionNode("D-bbbb0001", "Session storage depends on Redis caching layer.", "keeps lookups fast")
	seedNodes(t, graph, target, source)

	embedder := &stubEmbedder{vectors: map[string][]float32{
		target.Text(): {1, 0},
		source.Text(): {0, 1},
	}}

	// No StatePath: there is nothing to be incremental against.
	pipeline := NewPipeline(graph, embedder, nil, nil, Options{Mode: ModeIncremental})
	report, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Mode != ModeFull {
		t.Fatalf("expected fallback to full mode, got %s", report.Mode)
	}
	if report.Statistics.NodesProcessed != 2 {
		t.Fatalf("expected all nodes processed, got %d", report.Statistics.NodesProcessed)
	}
	if len(graph.Edges()) == 0 {
		t.Fatalf("expected edges from the full run")
	}
}

func TestPipelineCountsPersistenceErrorsWithoutAborting(t *testing.T) {
	graph := memory.NewGraphMemoryStore()
	target := patternNode("P-aaaa0001", "Redis caching layer", "wrap calls in a read-through cache")
	source := decisionNode("D-bbbb0001", "Session storage depends on Redis caching layer.", "keeps lookups fast")
	seedNodes(t, graph, target, source)
	graph.FailEdgeWrites = true

	embedder := &stubEmbedder{vectors: map[string][]float32{
		target.Text(): {1, 0},
		source.Text(): {0, 1},
	}}

	pipeline := NewPipeline(graph, embedder, nil, nil, Options{Mode: ModeFull})
	report, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("write failures must not abort the run: %v", err)
	}
	if report.Statistics.PersistenceErrors != 1 {
		t.Fatalf("expected 1 persistence error, got %d", report.Statistics.PersistenceErrors)
	}
	if report.Statistics.TotalEdgesCreated != 0 {
		t.Fatalf("expected 0 created edges, got %d", report.Statistics.TotalEdgesCreated)
	}
}
