package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/lorekeep/lorekeep/internal/util"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/store"
)

const createNodeSQL = `
MERGE (n:KnowledgeNode {id: $id})
SET n.kind           = $kind,
    n.description    = $description,
    n.rationale      = $rationale,
    n.name           = $name,
    n.implementation = $implementation,
    n.context        = $context,
    n.attempt        = $attempt,
    n.reason_failed  = $reason_failed,
    n.lesson_learned = $lesson_learned,
    n.text           = $text,
    n.source_files   = $source_files,
    n.created_at     = $created_at
`

// CreateNode persists a node. Writing the same ID twice overwrites the
// node's properties instead of duplicating it.
func (s *GraphNeo4jStore) CreateNode(ctx context.Context, node *knowledge.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}

	sourceFiles := node.SourceFiles
	if sourceFiles == nil {
		sourceFiles = []string{}
	}
	createdAt := node.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.run(ctx, createNodeSQL, map[string]any{
		"id":             node.ID,
		"kind":           string(node.Kind),
		"description":    util.SanitizeStoredText(node.Description),
		"rationale":      util.SanitizeStoredText(node.Rationale),
		"name":           util.SanitizeStoredText(node.Name),
		"implementation": util.SanitizeStoredText(node.Implementation),
		"context":        util.SanitizeStoredText(node.Context),
		"attempt":        util.SanitizeStoredText(node.Attempt),
		"reason_failed":  util.SanitizeStoredText(node.ReasonFailed),
		"lesson_learned": util.SanitizeStoredText(node.LessonLearned),
		"text":           util.SanitizeStoredText(node.Text()),
		"source_files":   sourceFiles,
		"created_at":     createdAt,
	})
	if err != nil {
		return fmt.Errorf("creating node %s: %w", node.ID, err)
	}
	return nil
}

// GetNode loads a single node by ID. A missing node returns (nil, nil).
func (s *GraphNeo4jStore) GetNode(ctx context.Context, id string) (*knowledge.Node, error) {
	result, err := s.run(ctx,
		`MATCH (n:KnowledgeNode {id: $id}) RETURN n`,
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, fmt.Errorf("getting node %s: %w", id, err)
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	return nodeFromRecord(result.Records[0])
}

// QueryNodes returns nodes matching the filter, oldest first.
func (s *GraphNeo4jStore) QueryNodes(ctx context.Context, filter store.NodeFilter) ([]*knowledge.Node, error) {
	query := `MATCH (n:KnowledgeNode) WHERE 1 = 1`
	params := map[string]any{}

	if filter.Kind != "" {
		query += ` AND n.kind = $kind`
		params["kind"] = string(filter.Kind)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND n.created_at > $created_after`
		params["created_after"] = filter.CreatedAfter
	}
	query += ` RETURN n ORDER BY n.created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT $limit`
		params["limit"] = filter.Limit
	}

	result, err := s.run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	return nodesFromRecords(result.Records)
}

// CountNodes returns the total node count.
func (s *GraphNeo4jStore) CountNodes(ctx context.Context) (int64, error) {
	result, err := s.run(ctx, `MATCH (n:KnowledgeNode) RETURN count(n) AS count`, nil)
	if err != nil {
		return 0, fmt.Errorf("counting nodes: %w", err)
	}
	return countFromResult(result)
}

// AppendSourceFile adds a source file to a node unless already present.
func (s *GraphNeo4jStore) AppendSourceFile(ctx context.Context, nodeID, sourceFile string) error {
	if sourceFile == "" {
		return nil
	}
	_, err := s.run(ctx, `
MATCH (n:KnowledgeNode {id: $id})
SET n.source_files = CASE
  WHEN $file IN coalesce(n.source_files, []) THEN n.source_files
  ELSE coalesce(n.source_files, []) + $file
END`,
		map[string]any{"id": nodeID, "file": sourceFile},
	)
	if err != nil {
		return fmt.Errorf("appending source file to %s: %w", nodeID, err)
	}
	return nil
}

// SearchByKeyword returns nodes whose text contains the keyword,
// case-insensitively.
func (s *GraphNeo4jStore) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*knowledge.Node, error) {
	if keyword == "" || limit <= 0 {
		return nil, nil
	}
	result, err := s.run(ctx, `
MATCH (n:KnowledgeNode)
WHERE toLower(n.text) CONTAINS toLower($keyword)
RETURN n
LIMIT $limit`,
		map[string]any{"keyword": keyword, "limit": limit},
	)
	if err != nil {
		return nil, fmt.Errorf("keyword search %q: %w", keyword, err)
	}
	return nodesFromRecords(result.Records)
}

func nodesFromRecords(records []*db.Record) ([]*knowledge.Node, error) {
	nodes := make([]*knowledge.Node, 0, len(records))
	for _, record := range records {
		node, err := nodeFromRecord(record)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func nodeFromRecord(record *db.Record) (*knowledge.Node, error) {
	raw, ok := record.Get("n")
	if !ok {
		return nil, fmt.Errorf("record has no node column")
	}
	dbNode, ok := raw.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected node column type %T", raw)
	}
	props := dbNode.Props

	kind, err := knowledge.ParseKind(stringProp(props, "kind"))
	if err != nil {
		return nil, err
	}

	node := &knowledge.Node{
		ID:   stringProp(props, "id"),
		Kind: kind,

		Description: stringProp(props, "description"),
		Rationale:   stringProp(props, "rationale"),

		Name:           stringProp(props, "name"),
		Implementation: stringProp(props, "implementation"),
		Context:        stringProp(props, "context"),

		Attempt:       stringProp(props, "attempt"),
		ReasonFailed:  stringProp(props, "reason_failed"),
		LessonLearned: stringProp(props, "lesson_learned"),
	}

	if files, ok := props["source_files"].([]any); ok {
		for _, f := range files {
			if s, ok := f.(string); ok {
				node.SourceFiles = append(node.SourceFiles, s)
			}
		}
	}
	if created, ok := props["created_at"].(time.Time); ok {
		node.CreatedAt = created
	}
	return node, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func countFromResult(result *neo4j.EagerResult) (int64, error) {
	if len(result.Records) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	raw, ok := result.Records[0].Get("count")
	if !ok {
		return 0, fmt.Errorf("count query returned no count column")
	}
	count, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count type %T", raw)
	}
	return count, nil
}
