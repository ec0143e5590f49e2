package server

import (
	"context"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/search"
	"github.com/lorekeep/lorekeep/pkg/store/memory"
)

type stubEmbedder struct {
	vector []float32
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return s.vector, nil
}

func (s *stubEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = s.vector
	}
	return out, nil
}

func TestRefreshOnExtractPicksUpNewNodes(t *testing.T) {
	graph := memory.NewGraphMemoryStore()
	engine := search.NewEngine(graph, &stubEmbedder{vector: []float32{1, 0}}, nil)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	if got := engine.IndexedNodes(); got != 0 {
		t.Fatalf("expected empty index, got %d", got)
	}

	// A worker creates a node and announces the finished run.
	node := &knowledge.Node{
		ID: "D-aaaa1111", Kind: knowledge.KindDecision,
		Description: "use Redis for caching", Rationale: "fast reads",
	}
	if err := graph.CreateNode(context.Background(), node); err != nil {
		t.Fatalf("seeding node: %v", err)
	}

	deliveries := make(chan amqp091.Delivery, 1)
	deliveries <- amqp091.Delivery{Body: []byte(`{"mode":"full"}`)}
	close(deliveries)

	refreshOnExtract(context.Background(), engine, deliveries)

	if got := engine.IndexedNodes(); got != 1 {
		t.Fatalf("expected the new node to be indexed, got %d", got)
	}
}

func TestRefreshOnExtractStopsOnCancel(t *testing.T) {
	graph := memory.NewGraphMemoryStore()
	engine := search.NewEngine(graph, &stubEmbedder{vector: []float32{1, 0}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An open delivery channel must not keep the loop alive.
	refreshOnExtract(ctx, engine, make(chan amqp091.Delivery))
}
