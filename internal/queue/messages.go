package queue

// ExtractJobMsg requests a relationship extraction run over the whole
// graph. Zero-valued fields fall back to the pipeline defaults.
type ExtractJobMsg struct {
	Mode              string  `json:"mode"`
	SemanticThreshold float64 `json:"semantic_threshold,omitempty"`
	EnhanceWithLLM    bool    `json:"enhance_with_llm"`
	CorrelationID     string  `json:"correlation_id"`
}

// IngestJobMsg carries one conversation excerpt to mine for knowledge.
type IngestJobMsg struct {
	Content       string `json:"content"`
	SourceFile    string `json:"source_file"`
	CorrelationID string `json:"correlation_id"`
}

// ExtractCompletedMsg is published on the pubsub exchange when an
// extraction run finishes.
type ExtractCompletedMsg struct {
	CorrelationID     string  `json:"correlation_id"`
	Mode              string  `json:"mode"`
	NodesProcessed    int     `json:"nodes_processed"`
	TotalEdgesCreated int     `json:"total_edges_created"`
	Connectivity      float64 `json:"connectivity_percentage"`
	ReportKey         string  `json:"report_key,omitempty"`
}
