package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RerankClient implements ai.Reranker against a text-embeddings-inference
// style /rerank endpoint backed by a cross-encoder model.
type RerankClient struct {
	baseURL string
	apiKey  string
	model   string

	httpClient *http.Client
}

// NewRerankClientParams configures a RerankClient. Timeout defaults to
// 30 seconds when zero.
type NewRerankClientParams struct {
	BaseURL string
	ApiKey  string
	Model   string

	Timeout time.Duration
}

// NewRerankClient creates a reranker client. It returns nil when no base
// URL is configured; callers treat a nil reranker as "keep fused order".
func NewRerankClient(params NewRerankClientParams) *RerankClient {
	if params.BaseURL == "" {
		return nil
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RerankClient{
		baseURL:    strings.TrimSuffix(params.BaseURL, "/"),
		apiKey:     params.ApiKey,
		model:      params.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	RawScores bool     `json:"raw_scores"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores every document against the query. The returned slice is
// positionally aligned with documents.
func (c *RerankClient) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Query: query,
		Texts: documents,
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank request failed: %s: %s", resp.Status, string(raw))
	}

	var results []rerankResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("rerank response parse failed: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("rerank index out of range: %d", r.Index)
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}
