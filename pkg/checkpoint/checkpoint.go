package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultSaveEveryBatches is how many completed batches pass between
// periodic checkpoint writes.
const DefaultSaveEveryBatches = 10

// ExtractionStats summarizes a run for resumption and reporting.
type ExtractionStats struct {
	Decisions         int       `json:"decisions"`
	Patterns          int       `json:"patterns"`
	Failures          int       `json:"failures"`
	TotalNodesCreated int       `json:"total_nodes_created"`
	SuccessRate       float64   `json:"success_rate"`
	Timestamp         time.Time `json:"timestamp"`
}

// Checkpoint is the on-disk shape of a resumable run.
type Checkpoint struct {
	CompletedNodeIDs []string        `json:"completed_node_ids"`
	ExtractionStats  ExtractionStats `json:"extraction_stats"`
}

// Manager owns a checkpoint file. Saves are synchronous and atomic: the
// checkpoint is written to a temp file in the same directory and renamed
// over the target, so a crash mid-write never corrupts the previous
// checkpoint.
type Manager struct {
	path        string
	saveEvery   int
	mu          sync.Mutex
	completed   map[string]struct{}
	order       []string
	stats       ExtractionStats
	batchesDone int
}

// NewManager creates a Manager for path. saveEvery <= 0 falls back to
// DefaultSaveEveryBatches.
func NewManager(path string, saveEvery int) *Manager {
	if saveEvery <= 0 {
		saveEvery = DefaultSaveEveryBatches
	}
	return &Manager{
		path:      path,
		saveEvery: saveEvery,
		completed: make(map[string]struct{}),
	}
}

// Load reads the checkpoint file. A missing file is not an error; the
// manager simply starts empty.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading checkpoint %s: %w", m.path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return fmt.Errorf("parsing checkpoint %s: %w", m.path, err)
	}

	m.completed = make(map[string]struct{}, len(cp.CompletedNodeIDs))
	m.order = m.order[:0]
	for _, id := range cp.CompletedNodeIDs {
		if _, seen := m.completed[id]; seen {
			continue
		}
		m.completed[id] = struct{}{}
		m.order = append(m.order, id)
	}
	m.stats = cp.ExtractionStats
	return nil
}

// IsCompleted reports whether the node was already processed in a
// previous (or the current) run.
func (m *Manager) IsCompleted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.completed[id]
	return ok
}

// MarkCompleted records node IDs as processed.
func (m *Manager) MarkCompleted(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, seen := m.completed[id]; seen {
			continue
		}
		m.completed[id] = struct{}{}
		m.order = append(m.order, id)
	}
}

// CompletedCount returns how many nodes are recorded as processed.
func (m *Manager) CompletedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed)
}

// SetStats replaces the stored run statistics.
func (m *Manager) SetStats(stats ExtractionStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
}

// Stats returns the stored run statistics.
func (m *Manager) Stats() ExtractionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// BatchDone records a finished batch and saves when the periodic
// threshold is reached. It returns whether a save happened.
func (m *Manager) BatchDone() (bool, error) {
	m.mu.Lock()
	m.batchesDone++
	due := m.batchesDone%m.saveEvery == 0
	m.mu.Unlock()

	if !due {
		return false, nil
	}
	return true, m.Save()
}

// Save writes the checkpoint atomically.
func (m *Manager) Save() error {
	m.mu.Lock()
	cp := Checkpoint{
		CompletedNodeIDs: append([]string(nil), m.order...),
		ExtractionStats:  m.stats,
	}
	m.mu.Unlock()

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}
