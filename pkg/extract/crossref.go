package extract

import (
	"regexp"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

const crossReferenceWeight = 0.8

// nodeIDPattern matches kind-prefixed node IDs embedded in free text.
var nodeIDPattern = regexp.MustCompile(`\b([DPF]-[a-f0-9]{8,})\b`)

// extractCrossReferences finds node IDs mentioned verbatim in other
// nodes' text. Only IDs present in the current node set count; a node
// citing its own ID is ignored.
func extractCrossReferences(nodes []*knowledge.Node) []*knowledge.Edge {
	validIDs := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		validIDs[node.ID] = struct{}{}
	}

	var edges []*knowledge.Edge
	for _, source := range nodes {
		for _, match := range nodeIDPattern.FindAllStringSubmatch(source.Text(), -1) {
			targetID := match[1]
			if _, known := validIDs[targetID]; !known || targetID == source.ID {
				continue
			}
			edges = append(edges, &knowledge.Edge{
				SourceID: source.ID,
				TargetID: targetID,
				Type:     knowledge.RelationReferences,
				Weight:   crossReferenceWeight,
			})
		}
	}
	return edges
}
