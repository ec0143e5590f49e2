package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// ReportStatistics aggregates run-level counters.
type ReportStatistics struct {
	NodesProcessed         int     `json:"nodes_processed"`
	NodesWithEdges         int     `json:"nodes_with_edges"`
	ConnectivityPercentage float64 `json:"connectivity_percentage"`
	TotalEdgesCreated      int     `json:"total_edges_created"`
	PersistenceErrors      int     `json:"persistence_errors"`
}

// EdgesByLayer counts candidate edges per extraction layer, before
// deduplication.
type EdgesByLayer struct {
	ExplicitReferences int `json:"layer_1_explicit_references"`
	CrossReferences    int `json:"layer_2_cross_references"`
	SemanticSimilarity int `json:"layer_3_semantic_similarity"`
	Hierarchical       int `json:"layer_4_hierarchical"`
	LLMEnhanced        int `json:"layer_5_llm_enhanced"`
}

// Report is the final summary of an extraction run. A report is always
// produced, including on partial failure.
type Report struct {
	Timestamp    time.Time        `json:"timestamp"`
	Mode         Mode             `json:"mode"`
	Statistics   ReportStatistics `json:"statistics"`
	EdgesByLayer EdgesByLayer     `json:"edges_by_layer"`
}

// Save writes the report as indented JSON, atomically.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("creating temp report file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func connectivityPercentage(nodesWithEdges, nodesProcessed int) float64 {
	if nodesProcessed == 0 {
		return 0
	}
	pct := float64(nodesWithEdges) / float64(nodesProcessed) * 100
	return math.Round(pct*100) / 100
}
