package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/store"
)

// GraphMemoryStore is an in-process store.GraphStore. It backs unit
// tests and local development where no Neo4j instance is available.
type GraphMemoryStore struct {
	mu    sync.Mutex
	nodes map[string]*knowledge.Node
	order []string
	edges map[string]*knowledge.Edge

	// FailEdgeWrites makes CreateEdge fail, for exercising the
	// log-and-count persistence error path.
	FailEdgeWrites bool

	// FailKeywordSearch makes SearchByKeyword fail, for exercising the
	// degraded search path.
	FailKeywordSearch bool
}

// NewGraphMemoryStore returns an empty store.
func NewGraphMemoryStore() *GraphMemoryStore {
	return &GraphMemoryStore{
		nodes: make(map[string]*knowledge.Node),
		edges: make(map[string]*knowledge.Edge),
	}
}

func (s *GraphMemoryStore) CreateNode(ctx context.Context, node *knowledge.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *node
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.nodes[clone.ID]; !exists {
		s.order = append(s.order, clone.ID)
	}
	s.nodes[clone.ID] = &clone
	return nil
}

func (s *GraphMemoryStore) GetNode(ctx context.Context, id string) (*knowledge.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	clone := *node
	return &clone, nil
}

func (s *GraphMemoryStore) QueryNodes(ctx context.Context, filter store.NodeFilter) ([]*knowledge.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*knowledge.Node
	for _, id := range s.order {
		node := s.nodes[id]
		if filter.Kind != "" && node.Kind != filter.Kind {
			continue
		}
		if !filter.CreatedAfter.IsZero() && !node.CreatedAt.After(filter.CreatedAfter) {
			continue
		}
		clone := *node
		out = append(out, &clone)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (s *GraphMemoryStore) CountNodes(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.nodes)), nil
}

func (s *GraphMemoryStore) AppendSourceFile(ctx context.Context, nodeID, sourceFile string) error {
	if sourceFile == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil
	}
	node.AddSourceFile(sourceFile)
	return nil
}

func (s *GraphMemoryStore) CreateEdge(ctx context.Context, edge *knowledge.Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	if s.FailEdgeWrites {
		return context.DeadlineExceeded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *edge
	s.edges[edge.Key()] = &clone
	return nil
}

func (s *GraphMemoryStore) CountEdges(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.edges)), nil
}

func (s *GraphMemoryStore) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*knowledge.Node, error) {
	if s.FailKeywordSearch {
		return nil, context.DeadlineExceeded
	}
	if keyword == "" || limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(keyword)
	var out []*knowledge.Node
	for _, id := range s.order {
		node := s.nodes[id]
		if !strings.Contains(strings.ToLower(node.Text()), needle) {
			continue
		}
		clone := *node
		out = append(out, &clone)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *GraphMemoryStore) Close(ctx context.Context) error {
	return nil
}

// Edges returns a snapshot of all stored edges, for assertions in tests.
func (s *GraphMemoryStore) Edges() []*knowledge.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*knowledge.Edge, 0, len(s.edges))
	for _, edge := range s.edges {
		clone := *edge
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Key() < out[b].Key()
	})
	return out
}
