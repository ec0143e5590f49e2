package storage

import (
	"testing"
)

func TestReportKeysToPruneKeepsNewest(t *testing.T) {
	keys := []string{
		"reports/2026-08-03T10-00-00Z.json",
		"reports/2026-08-01T10-00-00Z.json",
		"reports/2026-08-02T10-00-00Z.json",
	}

	stale := reportKeysToPrune(keys, 2)
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale key, got %v", stale)
	}
	if stale[0] != "reports/2026-08-01T10-00-00Z.json" {
		t.Fatalf("expected the oldest key, got %s", stale[0])
	}
}

func TestReportKeysToPruneUnderLimit(t *testing.T) {
	keys := []string{
		"reports/2026-08-01T10-00-00Z.json",
		"reports/2026-08-02T10-00-00Z.json",
	}

	if stale := reportKeysToPrune(keys, 2); stale != nil {
		t.Fatalf("at the limit nothing should be pruned, got %v", stale)
	}
	if stale := reportKeysToPrune(keys, 5); stale != nil {
		t.Fatalf("under the limit nothing should be pruned, got %v", stale)
	}
}

func TestReportKeysToPruneDisabled(t *testing.T) {
	keys := []string{
		"reports/2026-08-01T10-00-00Z.json",
		"reports/2026-08-02T10-00-00Z.json",
	}

	if stale := reportKeysToPrune(keys, 0); stale != nil {
		t.Fatalf("keep 0 disables pruning, got %v", stale)
	}
	if stale := reportKeysToPrune(keys, -1); stale != nil {
		t.Fatalf("negative keep disables pruning, got %v", stale)
	}
}
