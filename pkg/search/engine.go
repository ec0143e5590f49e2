package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lorekeep/lorekeep/pkg/ai"
	"github.com/lorekeep/lorekeep/pkg/index"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/store"
)

const (
	// graphKeywordLimit caps how many keywords the graph channel issues
	// lookups for.
	graphKeywordLimit = 5
	// graphResultsPerKeyword caps rows per keyword lookup.
	graphResultsPerKeyword = 10
	// vectorTopK is how many neighbours the vector channel retrieves.
	vectorTopK = 50
	// rerankTopK is the final result list size.
	rerankTopK = 15
	// softTarget is the latency budget. Exceeding it logs a warning but
	// never cuts off an in-flight query.
	softTarget = 2 * time.Second
)

// Metrics carries per-stage timings and channel counters for one query.
type Metrics struct {
	DecompositionMs float64 `json:"decomposition_ms"`
	SearchMs        float64 `json:"search_ms"`
	FusionMs        float64 `json:"fusion_ms"`
	RerankingMs     float64 `json:"reranking_ms"`
	TotalMs         float64 `json:"total_ms"`
	CacheHit        bool    `json:"cache_hit"`
	GraphResults    int     `json:"graph_results"`
	VectorResults   int     `json:"vector_results"`
}

// Engine answers natural language queries over the knowledge graph by
// fusing a keyword channel and a vector channel, then reranking with a
// cross-encoder. The vector side runs against an in-process index that
// Refresh rebuilds from the store; the engine serves queries against
// whatever snapshot was indexed last.
type Engine struct {
	store    store.GraphStore
	embedder ai.Embedder
	reranker ai.Reranker

	cache *queryCache

	mu    sync.RWMutex
	flat  *index.Flat
	nodes map[string]*knowledge.Node
}

// NewEngine wires an engine. The reranker may be nil; queries then keep
// the fused order.
func NewEngine(graphStore store.GraphStore, embedder ai.Embedder, reranker ai.Reranker) *Engine {
	return &Engine{
		store:    graphStore,
		embedder: embedder,
		reranker: reranker,
		cache:    newQueryCache(),
		flat:     index.NewFlat(),
		nodes:    make(map[string]*knowledge.Node),
	}
}

// Refresh rebuilds the vector index from the current node set. Called
// at startup and after extraction runs; concurrent queries keep using
// the previous snapshot until the swap.
func (e *Engine) Refresh(ctx context.Context) error {
	nodes, err := e.store.QueryNodes(ctx, store.NodeFilter{})
	if err != nil {
		return fmt.Errorf("loading nodes for index: %w", err)
	}

	withText := make([]*knowledge.Node, 0, len(nodes))
	inputs := make([][]byte, 0, len(nodes))
	for _, node := range nodes {
		text := node.Text()
		if text == "" {
			continue
		}
		withText = append(withText, node)
		inputs = append(inputs, []byte(text))
	}

	flat := index.NewFlat()
	byID := make(map[string]*knowledge.Node, len(withText))

	if len(withText) > 0 {
		embeddings, err := e.embedder.GenerateEmbeddings(ctx, inputs)
		if err != nil {
			return fmt.Errorf("embedding %d nodes for index: %w", len(withText), err)
		}
		for i, node := range withText {
			if err := flat.Add(node.ID, embeddings[i]); err != nil {
				return fmt.Errorf("indexing node %s: %w", node.ID, err)
			}
			byID[node.ID] = node
		}
	}

	e.mu.Lock()
	e.flat = flat
	e.nodes = byID
	e.mu.Unlock()

	logger.Info("[Search] Vector index refreshed", "nodes", len(withText))
	return nil
}

// IndexedNodes returns how many nodes the current snapshot covers.
func (e *Engine) IndexedNodes() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.flat.Len()
}

// Search runs the full hybrid pipeline for one query. A failure in a
// single channel degrades that channel to an empty list; only
// cancellation aborts the query as a whole.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, *Metrics, error) {
	metrics := &Metrics{}
	start := time.Now()

	if cached, ok := e.cache.Get(query); ok {
		metrics.CacheHit = true
		metrics.TotalMs = msSince(start)
		return cached, metrics, nil
	}

	decompStart := time.Now()
	decomposed := Decompose(query)
	metrics.DecompositionMs = msSince(decompStart)

	searchStart := time.Now()
	graphResults, vectorResults, allChannelsFailed := e.runChannels(ctx, decomposed)
	metrics.SearchMs = msSince(searchStart)
	metrics.GraphResults = len(graphResults)
	metrics.VectorResults = len(vectorResults)

	if err := ctx.Err(); err != nil {
		return nil, metrics, err
	}

	fusionStart := time.Now()
	fused := fuseResults(graphResults, vectorResults)
	metrics.FusionMs = msSince(fusionStart)

	rerankStart := time.Now()
	final := e.rerank(ctx, decomposed.Semantic, fused)
	metrics.RerankingMs = msSince(rerankStart)

	metrics.TotalMs = msSince(start)
	if elapsed := time.Since(start); elapsed >= softTarget {
		logger.Warn("[Search] Query exceeded soft latency target",
			"query", query, "elapsed_ms", metrics.TotalMs)
	}

	// An answer produced with every channel down says nothing about the
	// graph; caching it would pin the outage for the process lifetime.
	if !allChannelsFailed {
		e.cache.Set(query, final)
	}
	return final, metrics, nil
}

// runChannels executes the graph and vector channels concurrently. Each
// channel logs and swallows its own failure; cancellation of the parent
// context cancels both. The returned flag reports whether every channel
// failed.
func (e *Engine) runChannels(ctx context.Context, decomposed DecomposedQuery) ([]Result, []Result, bool) {
	var graphResults, vectorResults []Result
	var graphErr, vectorErr error

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		results, err := e.graphChannel(groupCtx, decomposed)
		if err != nil {
			logger.Error("[Search] Graph channel failed", "error", err)
			graphErr = err
			return nil
		}
		graphResults = results
		return nil
	})
	group.Go(func() error {
		results, err := e.vectorChannel(groupCtx, decomposed)
		if err != nil {
			logger.Error("[Search] Vector channel failed", "error", err)
			vectorErr = err
			return nil
		}
		vectorResults = results
		return nil
	})
	_ = group.Wait()

	return graphResults, vectorResults, graphErr != nil && vectorErr != nil
}

// graphChannel matches keywords against node text through the store. A
// node surfacing for several keywords appears once, credited to the
// first keyword that found it.
func (e *Engine) graphChannel(ctx context.Context, decomposed DecomposedQuery) ([]Result, error) {
	keywords := decomposed.Keywords
	if len(keywords) > graphKeywordLimit {
		keywords = keywords[:graphKeywordLimit]
	}

	var results []Result
	seen := make(map[string]struct{})
	for _, keyword := range keywords {
		nodes, err := e.store.SearchByKeyword(ctx, keyword, graphResultsPerKeyword)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", keyword, err)
		}
		for _, node := range nodes {
			if _, dup := seen[node.ID]; dup {
				continue
			}
			seen[node.ID] = struct{}{}
			results = append(results, Result{
				Content:   node.Text(),
				Score:     0.7,
				Source:    "graph",
				NodeID:    node.ID,
				Kind:      string(node.Kind),
				Keyword:   keyword,
				CreatedAt: node.CreatedAt,
			})
		}
	}
	return results, nil
}

// vectorChannel embeds the semantic remainder and searches the indexed
// snapshot.
func (e *Engine) vectorChannel(ctx context.Context, decomposed DecomposedQuery) ([]Result, error) {
	if decomposed.Semantic == "" {
		return nil, nil
	}

	e.mu.RLock()
	flat := e.flat
	byID := e.nodes
	e.mu.RUnlock()

	if flat.Len() == 0 {
		return nil, nil
	}

	embedding, err := e.embedder.GenerateEmbedding(ctx, []byte(decomposed.Semantic))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := flat.Search(embedding, vectorTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		node, ok := byID[match.ID]
		if !ok {
			continue
		}
		results = append(results, Result{
			Content:   node.Text(),
			Score:     match.Score,
			Source:    "vector",
			NodeID:    node.ID,
			Kind:      string(node.Kind),
			CreatedAt: node.CreatedAt,
		})
	}
	return results, nil
}

// rerank scores the fused candidates with the cross-encoder and keeps
// the best rerankTopK. Without a reranker, or when it fails, the fused
// order stands.
func (e *Engine) rerank(ctx context.Context, query string, fused []Result) []Result {
	if len(fused) == 0 {
		return []Result{}
	}

	if e.reranker == nil {
		if len(fused) > rerankTopK {
			fused = fused[:rerankTopK]
		}
		return fused
	}

	documents := make([]string, len(fused))
	for i, result := range fused {
		documents[i] = result.Content
	}

	scores, err := e.reranker.Rerank(ctx, query, documents)
	if err != nil || len(scores) != len(fused) {
		if err != nil {
			logger.Error("[Search] Reranking failed, keeping fused order", "error", err)
		}
		if len(fused) > rerankTopK {
			fused = fused[:rerankTopK]
		}
		return fused
	}

	reranked := make([]Result, len(fused))
	copy(reranked, fused)
	for i := range reranked {
		reranked[i].RerankScore = scores[i]
	}
	sort.SliceStable(reranked, func(a, b int) bool {
		return reranked[a].RerankScore > reranked[b].RerankScore
	})
	if len(reranked) > rerankTopK {
		reranked = reranked[:rerankTopK]
	}
	return reranked
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
