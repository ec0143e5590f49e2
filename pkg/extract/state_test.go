package extract

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadStateMissingFileYieldsFullMode(t *testing.T) {
	state := LoadState(filepath.Join(t.TempDir(), "missing.json"))
	if !state.LastRunTimestamp.IsZero() || state.Mode != ModeFull {
		t.Fatalf("expected zero state, got %+v", state)
	}
}

func TestLoadStateCorruptFileYieldsFullMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	state := LoadState(path)
	if !state.LastRunTimestamp.IsZero() || state.Mode != ModeFull {
		t.Fatalf("expected zero state for corrupt file, got %+v", state)
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	in := &State{
		LastRunTimestamp: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		NodesProcessed:   []string{"D-aaaa1111", "P-bbbb2222"},
		TotalEdges:       7,
		Mode:             ModeIncremental,
	}

	if err := SaveState(path, in); err != nil {
		t.Fatalf("saving state: %v", err)
	}

	out := LoadState(path)
	if !out.LastRunTimestamp.Equal(in.LastRunTimestamp) {
		t.Fatalf("timestamp mismatch: %v", out.LastRunTimestamp)
	}
	if len(out.NodesProcessed) != 2 || out.TotalEdges != 7 || out.Mode != ModeIncremental {
		t.Fatalf("unexpected state: %+v", out)
	}
}

func TestSaveStateLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := SaveState(path, &State{Mode: ModeFull}); err != nil {
		t.Fatalf("saving state: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Fatalf("expected only state.json, got %v", entries)
	}
}
