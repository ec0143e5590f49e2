package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State records the outcome of the previous extraction run. Incremental
// runs read it to decide which nodes count as new.
type State struct {
	LastRunTimestamp time.Time `json:"last_run_timestamp"`
	NodesProcessed   []string  `json:"nodes_processed"`
	TotalEdges       int       `json:"total_edges"`
	Mode             Mode      `json:"mode"`
}

// LoadState reads the state file. A missing or unreadable file yields
// the zero state, which forces a full run.
func LoadState(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		return &State{Mode: ModeFull}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return &State{Mode: ModeFull}
	}
	return &state
}

// SaveState writes the state file atomically so a crash mid-write never
// leaves a truncated file behind.
func SaveState(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding extraction state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing extraction state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
