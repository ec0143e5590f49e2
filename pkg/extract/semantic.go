package extract

import (
	"context"
	"fmt"

	"github.com/lorekeep/lorekeep/pkg/ai"
	"github.com/lorekeep/lorekeep/pkg/index"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

const semanticNeighborLimit = 50

// extractSemanticSimilarity embeds every node's text, builds a flat
// inner-product index and links each node to its nearest neighbours
// above the similarity threshold. The similarity score is scaled down
// by scale so semantic edges lose max-weight dedup ties against
// explicit references.
func extractSemanticSimilarity(
	ctx context.Context,
	embedder ai.Embedder,
	nodes []*knowledge.Node,
	threshold float64,
	scale float64,
) ([]*knowledge.Edge, error) {
	if len(nodes) < 2 {
		return nil, nil
	}

	inputs := make([][]byte, len(nodes))
	for i, node := range nodes {
		inputs[i] = []byte(node.Text())
	}

	embeddings, err := embedder.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embedding %d nodes: %w", len(nodes), err)
	}
	if len(embeddings) != len(nodes) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d nodes", len(embeddings), len(nodes))
	}

	flat := index.NewFlat()
	for i, node := range nodes {
		if err := flat.Add(node.ID, embeddings[i]); err != nil {
			return nil, fmt.Errorf("indexing node %s: %w", node.ID, err)
		}
	}

	k := min(semanticNeighborLimit, len(nodes))

	var edges []*knowledge.Edge
	for i, node := range nodes {
		matches, err := flat.Search(embeddings[i], k)
		if err != nil {
			return nil, fmt.Errorf("searching neighbours of %s: %w", node.ID, err)
		}
		for _, match := range matches {
			if match.ID == node.ID || match.Score < threshold {
				continue
			}
			edges = append(edges, &knowledge.Edge{
				SourceID: node.ID,
				TargetID: match.ID,
				Type:     knowledge.RelationSemanticallySimilar,
				Weight:   match.Score * scale,
			})
		}
	}
	return edges, nil
}
