package store

import (
	"context"
	"time"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

// NodeFilter narrows QueryNodes. Zero values mean "no constraint".
type NodeFilter struct {
	Kind         knowledge.Kind
	CreatedAfter time.Time
	Limit        int
}

// GraphStore defines the interface for persisting and querying the
// knowledge graph. Implementations must be safe for concurrent use; the
// extraction pipeline writes edges from multiple goroutines.
type GraphStore interface {
	CreateNode(ctx context.Context, node *knowledge.Node) error
	GetNode(ctx context.Context, id string) (*knowledge.Node, error)
	QueryNodes(ctx context.Context, filter NodeFilter) ([]*knowledge.Node, error)
	CountNodes(ctx context.Context) (int64, error)

	// AppendSourceFile credits an existing node with another source
	// file, keeping the list free of duplicates.
	AppendSourceFile(ctx context.Context, nodeID, sourceFile string) error

	// CreateEdge persists a single relationship. Writing the same
	// (source, target, type) twice must not produce a second edge.
	CreateEdge(ctx context.Context, edge *knowledge.Edge) error
	CountEdges(ctx context.Context) (int64, error)

	// SearchByKeyword returns nodes whose text contains the keyword,
	// case-insensitively, up to limit rows.
	SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*knowledge.Node, error)

	Close(ctx context.Context) error
}
