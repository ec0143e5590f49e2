package neo4j

import (
	"context"
	"fmt"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

// CreateEdge persists a single relationship. The relationship type is a
// Cypher label and cannot be parameterized; interpolating it is safe
// because Edge.Validate pins it to the closed enum first.
func (s *GraphNeo4jStore) CreateEdge(ctx context.Context, edge *knowledge.Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}

	params := map[string]any{
		"source": edge.SourceID,
		"target": edge.TargetID,
		"weight": edge.Weight,
	}

	setClauses := `r.weight = $weight`
	if edge.Metadata != nil {
		if reasoning, ok := edge.Metadata["reasoning"].(string); ok {
			setClauses += `, r.reasoning = $reasoning`
			params["reasoning"] = reasoning
		}
		if classified, ok := edge.Metadata["llm_classified"].(bool); ok {
			setClauses += `, r.llm_classified = $llm_classified`
			params["llm_classified"] = classified
		}
	}

	query := fmt.Sprintf(`
MATCH (a:KnowledgeNode {id: $source})
MATCH (b:KnowledgeNode {id: $target})
MERGE (a)-[r:%s]->(b)
SET %s`, edge.Type, setClauses)

	result, err := s.run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("creating edge %s-[%s]->%s: %w", edge.SourceID, edge.Type, edge.TargetID, err)
	}
	if result.Summary != nil {
		counters := result.Summary.Counters()
		if counters.RelationshipsCreated() == 0 && counters.PropertiesSet() == 0 {
			return fmt.Errorf("edge endpoints not found: %s -> %s", edge.SourceID, edge.TargetID)
		}
	}
	return nil
}

// CountEdges returns the total relationship count between knowledge
// nodes.
func (s *GraphNeo4jStore) CountEdges(ctx context.Context) (int64, error) {
	result, err := s.run(ctx, `
MATCH (:KnowledgeNode)-[r]->(:KnowledgeNode)
RETURN count(r) AS count`, nil)
	if err != nil {
		return 0, fmt.Errorf("counting edges: %w", err)
	}
	return countFromResult(result)
}
