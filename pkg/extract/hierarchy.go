package extract

import (
	"regexp"
	"strings"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

const (
	hierarchyJaccardThreshold = 0.3
	hierarchyMaxWeight        = 0.8
)

var significantWordPattern = regexp.MustCompile(`\b\w{4,}\b`)

// extractHierarchicalRelationships links patterns to the decisions they
// implement. A pattern implements a decision when their significant word
// sets overlap beyond the Jaccard threshold; the weight is the Jaccard
// score capped at hierarchyMaxWeight.
func extractHierarchicalRelationships(nodes []*knowledge.Node) []*knowledge.Edge {
	var decisions, patterns []*knowledge.Node
	for _, node := range nodes {
		switch node.Kind {
		case knowledge.KindDecision:
			decisions = append(decisions, node)
		case knowledge.KindPattern:
			patterns = append(patterns, node)
		}
	}

	decisionWords := make([]map[string]struct{}, len(decisions))
	for i, decision := range decisions {
		decisionWords[i] = significantWords(decision.Text())
	}

	var edges []*knowledge.Edge
	for _, pattern := range patterns {
		patternWords := significantWords(pattern.Text())
		for i, decision := range decisions {
			jaccard := jaccardSimilarity(patternWords, decisionWords[i])
			if jaccard <= hierarchyJaccardThreshold {
				continue
			}
			edges = append(edges, &knowledge.Edge{
				SourceID: pattern.ID,
				TargetID: decision.ID,
				Type:     knowledge.RelationImplements,
				Weight:   min(jaccard, hierarchyMaxWeight),
			})
		}
	}
	return edges
}

func significantWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, word := range significantWordPattern.FindAllString(strings.ToLower(text), -1) {
		words[word] = struct{}{}
	}
	return words
}

func jaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	overlap := 0
	for word := range a {
		if _, ok := b[word]; ok {
			overlap++
		}
	}
	union := len(a) + len(b) - overlap
	if union == 0 {
		return 0
	}
	return float64(overlap) / float64(union)
}
