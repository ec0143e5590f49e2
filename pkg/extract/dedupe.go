package extract

import "github.com/lorekeep/lorekeep/pkg/knowledge"

// dedupeEdges collapses candidates sharing a (source, target, type) key
// to a single edge. The highest weight wins; on equal weight the
// earlier candidate stays, which makes layer order the tie break.
// Output order is first-seen order of each key.
func dedupeEdges(edges []*knowledge.Edge) []*knowledge.Edge {
	best := make(map[string]*knowledge.Edge, len(edges))
	var order []string

	for _, edge := range edges {
		key := edge.Key()
		current, seen := best[key]
		if !seen {
			best[key] = edge
			order = append(order, key)
			continue
		}
		if edge.Weight > current.Weight {
			best[key] = edge
		}
	}

	out := make([]*knowledge.Edge, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}
