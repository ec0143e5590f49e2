package extract

import (
	"regexp"
	"strings"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

// referencePattern binds a phrase-capturing expression to the relation it
// implies and the weight that relation carries.
type referencePattern struct {
	expr   *regexp.Regexp
	kind   knowledge.RelationType
	weight float64
}

var explicitPatterns = []referencePattern{
	{regexp.MustCompile(`(?i)(?:relates? to|references?)\s+([A-Z][\w\s\-]{2,50})`), knowledge.RelationReferences, 1.0},
	{regexp.MustCompile(`(?i)(?:depends? on|requires?|needs)\s+([A-Z][\w\s\-]{2,50})`), knowledge.RelationDependsOn, 1.0},
	{regexp.MustCompile(`(?i)(?:similar to|like)\s+([A-Z][\w\s\-]{2,50})`), knowledge.RelationSimilarTo, 0.9},
	{regexp.MustCompile(`(?i)(?:implements?|follows?)\s+([A-Z][\w\s\-]{2,50})`), knowledge.RelationImplements, 0.9},
	{regexp.MustCompile(`(?i)(?:alternative to|instead of)\s+([A-Z][\w\s\-]{2,50})`), knowledge.RelationAlternativeTo, 0.9},
	{regexp.MustCompile(`(?i)(?:addresses|solves)\s+([A-Z][\w\s\-]{2,50})`), knowledge.RelationAddresses, 0.8},
}

const (
	phraseMinWords = 3
	phraseMaxWords = 10
)

// buildPhraseLookup maps the leading word n-grams (3 up to 10 words) of
// every node's text to that node's ID. The first node to claim a phrase
// keeps it. The table is built once per run and read-only afterwards.
func buildPhraseLookup(nodes []*knowledge.Node) map[string]string {
	lookup := make(map[string]string)
	for _, node := range nodes {
		words := strings.Fields(node.Text())
		if len(words) > phraseMaxWords {
			words = words[:phraseMaxWords]
		}
		for n := phraseMinWords; n <= len(words); n++ {
			phrase := strings.Join(words[:n], " ")
			if _, taken := lookup[phrase]; !taken {
				lookup[phrase] = node.ID
			}
		}
	}
	return lookup
}

// extractExplicitReferences finds phrases like "depends on X" in node
// text and resolves X against the phrase lookup. Self-references are
// dropped.
func extractExplicitReferences(nodes []*knowledge.Node, lookup map[string]string) []*knowledge.Edge {
	var edges []*knowledge.Edge
	for _, source := range nodes {
		text := source.Text()
		for _, pattern := range explicitPatterns {
			for _, match := range pattern.expr.FindAllStringSubmatch(text, -1) {
				phrase := strings.TrimSpace(match[1])
				targetID, ok := lookup[phrase]
				if !ok || targetID == source.ID {
					continue
				}
				edges = append(edges, &knowledge.Edge{
					SourceID: source.ID,
					TargetID: targetID,
					Type:     pattern.kind,
					Weight:   pattern.weight,
				})
			}
		}
	}
	return edges
}
