package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_LoadMissingFileStartsEmpty(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "checkpoint.json"), 0)
	if err := m.Load(); err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
	if m.CompletedCount() != 0 {
		t.Fatalf("expected empty checkpoint, got %d completed", m.CompletedCount())
	}
}

func TestManager_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	m := NewManager(path, 0)
	m.MarkCompleted("D-00000001", "P-00000002")
	m.MarkCompleted("D-00000001") // duplicate, must not double-count
	m.SetStats(ExtractionStats{
		Decisions:         4,
		Patterns:          2,
		Failures:          1,
		TotalNodesCreated: 7,
		SuccessRate:       0.875,
		Timestamp:         time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	if err := m.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	restored := NewManager(path, 0)
	if err := restored.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if restored.CompletedCount() != 2 {
		t.Fatalf("expected 2 completed nodes, got %d", restored.CompletedCount())
	}
	if !restored.IsCompleted("D-00000001") || !restored.IsCompleted("P-00000002") {
		t.Fatal("completed node IDs lost in round trip")
	}
	if restored.IsCompleted("F-00000003") {
		t.Fatal("unknown node reported as completed")
	}

	stats := restored.Stats()
	if stats.TotalNodesCreated != 7 || stats.SuccessRate != 0.875 {
		t.Fatalf("stats lost in round trip: %+v", stats)
	}
}

func TestManager_BatchDoneSavesPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	m := NewManager(path, 3)
	m.MarkCompleted("D-00000001")

	for i := 0; i < 2; i++ {
		saved, err := m.BatchDone()
		if err != nil {
			t.Fatalf("batch %d failed: %v", i, err)
		}
		if saved {
			t.Fatalf("batch %d should not have triggered a save", i)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("checkpoint file written before the save threshold")
	}

	saved, err := m.BatchDone()
	if err != nil {
		t.Fatalf("third batch failed: %v", err)
	}
	if !saved {
		t.Fatal("third batch should have triggered a save")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint file missing after periodic save: %v", err)
	}
}

func TestManager_SaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	m := NewManager(path, 0)
	m.MarkCompleted("D-00000001")
	if err := m.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the checkpoint file, found %d entries", len(entries))
	}
}
