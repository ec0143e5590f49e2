package extract

import (
	"strings"
	"testing"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

func TestFallbackExtractsDecision(t *testing.T) {
	f := NewKeywordFallback()

	node := f.Extract("After benchmarking we decided to use pgx connection pooling, because the default pool stalled.")
	if node == nil {
		t.Fatalf("expected a draft node")
	}
	if node.Kind != knowledge.KindDecision {
		t.Fatalf("expected decision, got %s", node.Kind)
	}
	if node.Description != "use pgx connection pooling" {
		t.Fatalf("unexpected description: %q", node.Description)
	}
	if node.ID != "" {
		t.Fatalf("draft node must not carry an ID")
	}
}

func TestFallbackExtractsFailure(t *testing.T) {
	f := NewKeywordFallback()

	node := f.Extract("The first deploy failed to drain connections; rollback took an hour.")
	if node == nil || node.Kind != knowledge.KindFailure {
		t.Fatalf("expected failure draft, got %+v", node)
	}
	if node.Attempt != "drain connections" {
		t.Fatalf("unexpected attempt: %q", node.Attempt)
	}
}

func TestFallbackGenericPatternForSubstantialText(t *testing.T) {
	f := NewKeywordFallback()

	content := "the ingestion worker reads archives from object storage and writes node candidates downstream"
	node := f.Extract(content)
	if node == nil || node.Kind != knowledge.KindPattern {
		t.Fatalf("expected generic pattern draft, got %+v", node)
	}
	if !strings.HasSuffix(node.Name, "...") {
		t.Fatalf("long content should be clipped with ellipsis: %q", node.Name)
	}
}

func TestFallbackRejectsShortContent(t *testing.T) {
	f := NewKeywordFallback()

	if node := f.Extract("  hi  "); node != nil {
		t.Fatalf("expected nil for short content, got %+v", node)
	}
}

func TestFallbackCachesByContentPrefix(t *testing.T) {
	f := NewKeywordFallback()

	content := "we decided to use structured logging everywhere."
	first := f.Extract(content)
	second := f.Extract(content)

	if first == nil || second == nil {
		t.Fatalf("expected draft nodes")
	}
	if f.CacheHits != 1 {
		t.Fatalf("expected 1 cache hit, got %d", f.CacheHits)
	}
	if f.Extractions != 1 {
		t.Fatalf("expected 1 extraction, got %d", f.Extractions)
	}

	// Returned drafts are copies; mutating one must not leak into the cache.
	first.Description = "mutated"
	third := f.Extract(content)
	if third.Description == "mutated" {
		t.Fatalf("cache returned a shared node")
	}
}
