package extract

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lorekeep/lorekeep/pkg/ai"
	"github.com/lorekeep/lorekeep/pkg/breaker"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

// enhanceResult summarizes one enhancement pass.
type enhanceResult struct {
	Enhanced       int
	ShortCircuited int
	Failed         int
}

// enhanceWithModel reclassifies SEMANTICALLY_SIMILAR edges through the
// model, bounded by a concurrency limiter and the circuit breaker. A
// valid verdict overwrites the edge's type and weight in place and tags
// it with the model's reasoning; any failure, malformed response or
// open breaker leaves the edge exactly as the semantic layer produced
// it.
func enhanceWithModel(
	ctx context.Context,
	completer ai.Completer,
	cb *breaker.Breaker,
	edges []*knowledge.Edge,
	nodes []*knowledge.Node,
	maxConcurrent int64,
) enhanceResult {
	byID := make(map[string]*knowledge.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	sem := semaphore.NewWeighted(maxConcurrent)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var result enhanceResult

	for _, edge := range edges {
		if edge.Type != knowledge.RelationSemanticallySimilar {
			continue
		}
		source, target := byID[edge.SourceID], byID[edge.TargetID]
		if source == nil || target == nil {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(edge *knowledge.Edge, source, target *knowledge.Node) {
			defer wg.Done()
			defer sem.Release(1)

			var verdict *ai.RelationshipClassification
			err := cb.Do(ctx, func(callCtx context.Context) error {
				var callErr error
				verdict, callErr = ai.CallClassifyRelationship(callCtx, completer, source.Text(), target.Text())
				return callErr
			})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case errors.Is(err, breaker.ErrOpen):
				result.ShortCircuited++
				return
			case err != nil:
				result.Failed++
				return
			}

			relation, parseErr := knowledge.ParseClassifiedRelation(verdict.RelationshipType)
			if parseErr != nil {
				result.Failed++
				return
			}

			edge.Type = relation
			edge.Weight = min(max(verdict.Confidence, 0), 1)
			edge.Metadata = map[string]any{
				"reasoning":      verdict.Reasoning,
				"llm_classified": true,
			}
			result.Enhanced++
		}(edge, source, target)
	}

	wg.Wait()

	if result.ShortCircuited > 0 {
		logger.Warn("[Extract] Classification short-circuited by breaker", "edges", result.ShortCircuited)
	}
	return result
}
