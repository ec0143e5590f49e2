package extract

import (
	"context"
	"math"
	"testing"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

func decisionNode(id, description, rationale string) *knowledge.Node {
	return &knowledge.Node{
		ID:          id,
		Kind:        knowledge.KindDecision,
		Description: description,
		Rationale:   rationale,
	}
}

func patternNode(id, name, implementation string) *knowledge.Node {
	return &knowledge.Node{
		ID:             id,
		Kind:           knowledge.KindPattern,
		Name:           name,
		Implementation: implementation,
	}
}

func TestExplicitReferencesResolveLeadingPhrases(t *testing.T) {
	target := patternNode("P-aaaa0001", "Redis caching layer", "wrap calls in a read-through cache")
	source := decisionNode("D-bbbb0001", "Session storage depends on Redis caching layer.", "keeps lookups fast")

	nodes := []*knowledge.Node{target, source}
	edges := extractExplicitReferences(nodes, buildPhraseLookup(nodes))

	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	edge := edges[0]
	if edge.SourceID != source.ID || edge.TargetID != target.ID {
		t.Fatalf("unexpected endpoints %s -> %s", edge.SourceID, edge.TargetID)
	}
	if edge.Type != knowledge.RelationDependsOn {
		t.Fatalf("expected DEPENDS_ON, got %s", edge.Type)
	}
	if edge.Weight != 1.0 {
		t.Fatalf("expected weight 1.0, got %f", edge.Weight)
	}
}

func TestExplicitReferencesDropSelfReference(t *testing.T) {
	node := decisionNode("D-cccc0001", "Queue consumer retry logic relates to Queue consumer retry logic.", "x")

	nodes := []*knowledge.Node{node}
	edges := extractExplicitReferences(nodes, buildPhraseLookup(nodes))

	if len(edges) != 0 {
		t.Fatalf("expected no self-referential edges, got %d", len(edges))
	}
}

func TestExplicitReferencesUnresolvedPhraseIgnored(t *testing.T) {
	source := decisionNode("D-dddd0001", "The importer depends on Nonexistent target phrase", "x")

	nodes := []*knowledge.Node{source}
	edges := extractExplicitReferences(nodes, buildPhraseLookup(nodes))

	if len(edges) != 0 {
		t.Fatalf("expected no edges for unresolved phrase, got %d", len(edges))
	}
}

func TestCrossReferencesMatchKnownIDs(t *testing.T) {
	target := decisionNode("D-12345678", "Use message TTLs on retry queues", "bounded redelivery")
	source := patternNode("P-87654321", "Retry wiring", "see D-12345678 and D-00000000 for background")

	edges := extractCrossReferences([]*knowledge.Node{target, source})

	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	edge := edges[0]
	if edge.SourceID != source.ID || edge.TargetID != target.ID {
		t.Fatalf("unexpected endpoints %s -> %s", edge.SourceID, edge.TargetID)
	}
	if edge.Type != knowledge.RelationReferences || edge.Weight != 0.8 {
		t.Fatalf("expected REFERENCES 0.8, got %s %f", edge.Type, edge.Weight)
	}
}

func TestCrossReferencesIgnoreOwnID(t *testing.T) {
	node := decisionNode("D-12345678", "This entry cites itself as D-12345678", "x")

	edges := extractCrossReferences([]*knowledge.Node{node})

	if len(edges) != 0 {
		t.Fatalf("expected no edges, got %d", len(edges))
	}
}

func TestSemanticSimilarityScalesScoreIntoWeight(t *testing.T) {
	a := decisionNode("D-aaaa1111", "decided to use Redis for caching", "fast reads")
	b := decisionNode("D-bbbb2222", "chose Redis instead of Memcached for caching", "richer types")

	// Unit vectors with an inner product of 0.81.
	embedder := &stubEmbedder{vectors: map[string][]float32{
		a.Text(): {1, 0},
		b.Text(): {0.81, float32(math.Sqrt(1 - 0.81*0.81))},
	}}

	edges, err := extractSemanticSimilarity(context.Background(), embedder, []*knowledge.Node{a, b}, 0.7, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 directed edges, got %d", len(edges))
	}
	for _, edge := range edges {
		if edge.Type != knowledge.RelationSemanticallySimilar {
			t.Fatalf("expected SEMANTICALLY_SIMILAR, got %s", edge.Type)
		}
		if math.Abs(edge.Weight-0.486) > 0.001 {
			t.Fatalf("expected weight ~0.486, got %f", edge.Weight)
		}
	}
}

func TestSemanticSimilarityRespectsThreshold(t *testing.T) {
	a := decisionNode("D-aaaa1111", "use websockets for live updates", "x")
	b := decisionNode("D-bbbb2222", "compress archived reports with zstd", "y")

	embedder := &stubEmbedder{vectors: map[string][]float32{
		a.Text(): {1, 0},
		b.Text(): {0, 1},
	}}

	edges, err := extractSemanticSimilarity(context.Background(), embedder, []*knowledge.Node{a, b}, 0.7, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("expected no edges below threshold, got %d", len(edges))
	}
}

func TestHierarchicalImplementsPatternToDecision(t *testing.T) {
	decision := decisionNode("D-aaaa1111", "adopt structured logging with request identifiers", "")
	pattern := patternNode("P-bbbb2222", "structured logging with request identifiers", "adopt everywhere")
	unrelated := decisionNode("D-cccc3333", "rotate credentials quarterly", "limit exposure window")

	edges := extractHierarchicalRelationships([]*knowledge.Node{decision, pattern, unrelated})

	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	edge := edges[0]
	if edge.SourceID != pattern.ID || edge.TargetID != decision.ID {
		t.Fatalf("expected pattern -> decision, got %s -> %s", edge.SourceID, edge.TargetID)
	}
	if edge.Type != knowledge.RelationImplements {
		t.Fatalf("expected IMPLEMENTS, got %s", edge.Type)
	}
	if edge.Weight <= hierarchyJaccardThreshold || edge.Weight > hierarchyMaxWeight {
		t.Fatalf("weight %f outside (%f, %f]", edge.Weight, hierarchyJaccardThreshold, hierarchyMaxWeight)
	}
}

func TestDedupeKeepsMaxWeightAndBreaksTiesByOrder(t *testing.T) {
	low := &knowledge.Edge{SourceID: "D-1", TargetID: "D-2", Type: knowledge.RelationReferences, Weight: 0.5}
	high := &knowledge.Edge{SourceID: "D-1", TargetID: "D-2", Type: knowledge.RelationReferences, Weight: 0.9}
	first := &knowledge.Edge{
		SourceID: "D-3", TargetID: "D-4",
		Type: knowledge.RelationImplements, Weight: 0.7,
		Metadata: map[string]any{"origin": "first"},
	}
	tied := &knowledge.Edge{SourceID: "D-3", TargetID: "D-4", Type: knowledge.RelationImplements, Weight: 0.7}

	out := dedupeEdges([]*knowledge.Edge{low, high, first, tied})

	if len(out) != 2 {
		t.Fatalf("expected 2 unique edges, got %d", len(out))
	}
	if out[0].Weight != 0.9 {
		t.Fatalf("expected max weight to win, got %f", out[0].Weight)
	}
	if out[1].Metadata == nil || out[1].Metadata["origin"] != "first" {
		t.Fatalf("expected tie to keep the earlier candidate")
	}
}

func TestDedupeDistinguishesTypes(t *testing.T) {
	a := &knowledge.Edge{SourceID: "D-1", TargetID: "D-2", Type: knowledge.RelationReferences, Weight: 0.8}
	b := &knowledge.Edge{SourceID: "D-1", TargetID: "D-2", Type: knowledge.RelationDependsOn, Weight: 0.8}

	out := dedupeEdges([]*knowledge.Edge{a, b})
	if len(out) != 2 {
		t.Fatalf("edges of different types must both survive, got %d", len(out))
	}
}
