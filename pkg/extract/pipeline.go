package extract

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lorekeep/lorekeep/pkg/ai"
	"github.com/lorekeep/lorekeep/pkg/breaker"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/store"
)

// Mode selects how much of the graph an extraction run covers.
type Mode string

const (
	// ModeFull processes every node pair.
	ModeFull Mode = "full"
	// ModeIncremental only produces edges touching at least one node
	// created since the previous run.
	ModeIncremental Mode = "incremental"
)

const (
	// DefaultSemanticThreshold is the minimum cosine similarity for a
	// semantic edge.
	DefaultSemanticThreshold = 0.7
	// DefaultSemanticScale shrinks semantic similarity scores into edge
	// weights so explicit references win max-weight dedup ties.
	DefaultSemanticScale = 0.6
	// DefaultMaxConcurrentClassifications bounds in-flight model calls
	// during the enhancement layer.
	DefaultMaxConcurrentClassifications = 10
)

// Options configures a pipeline run. Zero values fall back to the
// defaults above; Mode defaults to full.
type Options struct {
	Mode              Mode
	SemanticThreshold float64
	SemanticScale     float64

	// EnhanceWithLLM enables the fifth layer. It requires a configured
	// completer; without one the layer is skipped and the first four
	// layers' output stands unchanged.
	EnhanceWithLLM               bool
	MaxConcurrentClassifications int64

	// StatePath and ReportPath are written at the end of a run when set.
	StatePath  string
	ReportPath string
}

// Pipeline discovers relationships between knowledge nodes through five
// ordered signal layers and persists the surviving edges.
type Pipeline struct {
	store     store.GraphStore
	embedder  ai.Embedder
	completer ai.Completer
	breaker   *breaker.Breaker
	opts      Options
}

// NewPipeline wires a pipeline. The breaker may be nil when enhancement
// is disabled.
func NewPipeline(
	graphStore store.GraphStore,
	embedder ai.Embedder,
	completer ai.Completer,
	cb *breaker.Breaker,
	opts Options,
) *Pipeline {
	if opts.Mode == "" {
		opts.Mode = ModeFull
	}
	if opts.SemanticThreshold <= 0 {
		opts.SemanticThreshold = DefaultSemanticThreshold
	}
	if opts.SemanticScale <= 0 {
		opts.SemanticScale = DefaultSemanticScale
	}
	if opts.MaxConcurrentClassifications <= 0 {
		opts.MaxConcurrentClassifications = DefaultMaxConcurrentClassifications
	}
	if cb == nil {
		cb = breaker.New(breaker.Options{})
	}
	return &Pipeline{
		store:     graphStore,
		embedder:  embedder,
		completer: completer,
		breaker:   cb,
		opts:      opts,
	}
}

// Run executes all layers and persists the deduplicated edge set. It
// always returns a report, including when individual edge writes fail;
// only being unable to reach the store at all is a hard error.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{Timestamp: time.Now().UTC(), Mode: p.opts.Mode}

	var state *State
	if p.opts.Mode == ModeIncremental {
		if p.opts.StatePath != "" {
			state = LoadState(p.opts.StatePath)
		}
		if state == nil || state.LastRunTimestamp.IsZero() {
			logger.Info("[Extract] No previous run state, falling back to full mode")
			report.Mode = ModeFull
		}
	}
	incremental := report.Mode == ModeIncremental

	nodes, err := p.loadNodes(ctx)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		logger.Warn("[Extract] No nodes to process")
		return report, p.finish(ctx, report, nil)
	}

	newIDs := make(map[string]struct{}, len(nodes))
	if incremental {
		for _, node := range nodes {
			if node.CreatedAt.After(state.LastRunTimestamp) {
				newIDs[node.ID] = struct{}{}
			}
		}
		logger.Info("[Extract] Incremental run",
			"new", len(newIDs), "existing", len(nodes)-len(newIDs),
			"since", state.LastRunTimestamp.Format(time.RFC3339))
		report.Statistics.NodesProcessed = len(newIDs)
		if len(newIDs) == 0 {
			logger.Info("[Extract] No new nodes since last run")
			return report, p.finish(ctx, report, nil)
		}
	} else {
		report.Statistics.NodesProcessed = len(nodes)
	}

	// Shared read-only structures for the run.
	lookup := buildPhraseLookup(nodes)

	var candidates []*knowledge.Edge

	explicit := extractExplicitReferences(nodes, lookup)
	report.EdgesByLayer.ExplicitReferences = len(explicit)
	logger.Info("[Extract] Layer 1 explicit references", "edges", len(explicit))
	candidates = append(candidates, explicit...)

	crossRefs := extractCrossReferences(nodes)
	report.EdgesByLayer.CrossReferences = len(crossRefs)
	logger.Info("[Extract] Layer 2 cross-references", "edges", len(crossRefs))
	candidates = append(candidates, crossRefs...)

	semantic, err := extractSemanticSimilarity(ctx, p.embedder, nodes, p.opts.SemanticThreshold, p.opts.SemanticScale)
	if err != nil {
		return nil, fmt.Errorf("semantic layer: %w", err)
	}
	report.EdgesByLayer.SemanticSimilarity = len(semantic)
	logger.Info("[Extract] Layer 3 semantic similarity", "edges", len(semantic), "threshold", p.opts.SemanticThreshold)
	candidates = append(candidates, semantic...)

	hierarchical := extractHierarchicalRelationships(nodes)
	report.EdgesByLayer.Hierarchical = len(hierarchical)
	logger.Info("[Extract] Layer 4 hierarchical", "edges", len(hierarchical))
	candidates = append(candidates, hierarchical...)

	if p.opts.EnhanceWithLLM && p.completer != nil {
		enhancement := enhanceWithModel(ctx, p.completer, p.breaker, candidates, nodes, p.opts.MaxConcurrentClassifications)
		report.EdgesByLayer.LLMEnhanced = enhancement.Enhanced
		logger.Info("[Extract] Layer 5 model classification",
			"enhanced", enhancement.Enhanced,
			"failed", enhancement.Failed,
			"short_circuited", enhancement.ShortCircuited)
	}

	if incremental {
		candidates = dropExistingPairs(candidates, newIDs)
	}

	edges := dedupeEdges(candidates)
	logger.Info("[Extract] Deduplicated candidates", "candidates", len(candidates), "unique", len(edges))

	return report, p.finish(ctx, report, edges)
}

// loadNodes fetches all nodes and drops the ones without text. A node
// missing its text fields cannot participate in any layer.
func (p *Pipeline) loadNodes(ctx context.Context) ([]*knowledge.Node, error) {
	all, err := p.store.QueryNodes(ctx, store.NodeFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}

	nodes := make([]*knowledge.Node, 0, len(all))
	skipped := 0
	for _, node := range all {
		if node.Text() == "" {
			skipped++
			continue
		}
		nodes = append(nodes, node)
	}
	if skipped > 0 {
		logger.Warn("[Extract] Skipped nodes without text", "count", skipped)
	}
	return nodes, nil
}

// dropExistingPairs removes candidates where neither endpoint is new.
// Prior runs already covered existing-to-existing pairs; recomputing
// them would only duplicate work and edges.
func dropExistingPairs(edges []*knowledge.Edge, newIDs map[string]struct{}) []*knowledge.Edge {
	out := edges[:0]
	for _, edge := range edges {
		_, sourceNew := newIDs[edge.SourceID]
		_, targetNew := newIDs[edge.TargetID]
		if sourceNew || targetNew {
			out = append(out, edge)
		}
	}
	return out
}

// finish persists edges, completes the report and writes the report and
// state files. Edge write failures are logged and counted but never
// abort the batch.
func (p *Pipeline) finish(ctx context.Context, report *Report, edges []*knowledge.Edge) error {
	created := 0
	nodesWithEdges := make(map[string]struct{})
	for _, edge := range edges {
		if err := p.store.CreateEdge(ctx, edge); err != nil {
			report.Statistics.PersistenceErrors++
			logger.Error("[Extract] Failed to create edge",
				"source", edge.SourceID, "target", edge.TargetID, "type", edge.Type, "error", err)
			continue
		}
		created++
		nodesWithEdges[edge.SourceID] = struct{}{}
		nodesWithEdges[edge.TargetID] = struct{}{}
	}

	report.Statistics.TotalEdgesCreated = created
	report.Statistics.NodesWithEdges = len(nodesWithEdges)
	report.Statistics.ConnectivityPercentage = connectivityPercentage(
		len(nodesWithEdges), report.Statistics.NodesProcessed)

	logger.Info("[Extract] Run complete",
		"mode", report.Mode,
		"nodes", report.Statistics.NodesProcessed,
		"edges", created,
		"errors", report.Statistics.PersistenceErrors,
		"connectivity_pct", report.Statistics.ConnectivityPercentage)

	if p.opts.ReportPath != "" {
		if err := report.Save(p.opts.ReportPath); err != nil {
			logger.Error("[Extract] Failed to save report", "path", p.opts.ReportPath, "error", err)
		}
	}

	if p.opts.StatePath != "" {
		processed := make([]string, 0, len(nodesWithEdges))
		for id := range nodesWithEdges {
			processed = append(processed, id)
		}
		sort.Strings(processed)
		state := &State{
			LastRunTimestamp: report.Timestamp,
			NodesProcessed:   processed,
			TotalEdges:       created,
			Mode:             report.Mode,
		}
		if err := SaveState(p.opts.StatePath, state); err != nil {
			logger.Error("[Extract] Failed to save state", "path", p.opts.StatePath, "error", err)
		}
	}

	return nil
}
