package search

import (
	"sort"
	"time"
)

// rrfK dampens the rank contribution in reciprocal rank fusion so deep
// ranks still add a little signal instead of none.
const rrfK = 60

// Result is a single retrieval hit. Score is channel-dependent before
// fusion and the fused RRF score afterwards; RerankScore is only set
// once the cross-encoder has run.
type Result struct {
	Content     string    `json:"content"`
	Score       float64   `json:"score"`
	RerankScore float64   `json:"rerank_score,omitempty"`
	Source      string    `json:"source"`
	NodeID      string    `json:"node_id,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Keyword     string    `json:"keyword,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// fuseResults merges ranked channel lists with reciprocal rank fusion.
// Result identity is the exact content string; the first channel to
// introduce a content string supplies the retained metadata. Output is
// sorted by fused score, descending, ties keeping first-seen order.
func fuseResults(channels ...[]Result) []Result {
	scores := make(map[string]float64)
	retained := make(map[string]Result)
	var order []string

	for _, channel := range channels {
		for rank, result := range channel {
			content := result.Content
			if _, seen := scores[content]; !seen {
				retained[content] = result
				order = append(order, content)
			}
			scores[content] += 1.0 / float64(rrfK+rank+1)
		}
	}

	fused := make([]Result, 0, len(order))
	for _, content := range order {
		result := retained[content]
		result.Score = scores[content]
		fused = append(fused, result)
	}

	sort.SliceStable(fused, func(a, b int) bool {
		return fused[a].Score > fused[b].Score
	})
	return fused
}
