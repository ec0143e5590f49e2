package index

import (
	"fmt"
	"math"
	"sort"
)

// Match is a single similarity hit. Score is the cosine similarity of the
// query to the stored vector, in [-1, 1].
type Match struct {
	ID    string
	Score float64
}

// Flat is an exact inner-product index over L2-normalized vectors. Every
// search scans all stored vectors, which keeps scores exact and the
// implementation allocation-free on the read path. The index is built
// once per extraction run and is read-only afterwards; it is safe for
// concurrent Search calls but not for concurrent Add/Search.
type Flat struct {
	dim     int
	ids     []string
	vectors [][]float32
}

// NewFlat returns an empty index. The dimensionality is fixed by the
// first added vector.
func NewFlat() *Flat {
	return &Flat{}
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	return len(f.ids)
}

// Add normalizes vec and stores it under id. All vectors must share the
// same dimensionality; zero vectors are rejected because they cannot be
// normalized.
func (f *Flat) Add(id string, vec []float32) error {
	if id == "" {
		return fmt.Errorf("vector id is empty")
	}
	if len(vec) == 0 {
		return fmt.Errorf("vector for %s is empty", id)
	}
	if f.dim == 0 {
		f.dim = len(vec)
	}
	if len(vec) != f.dim {
		return fmt.Errorf("vector for %s has dimension %d, index has %d", id, len(vec), f.dim)
	}

	normalized, ok := normalize(vec)
	if !ok {
		return fmt.Errorf("vector for %s has zero norm", id)
	}

	f.ids = append(f.ids, id)
	f.vectors = append(f.vectors, normalized)
	return nil
}

// Search returns the k nearest neighbours of vec by inner product,
// sorted by descending score. Ties keep insertion order. k larger than
// the index size returns everything.
func (f *Flat) Search(vec []float32, k int) ([]Match, error) {
	if f.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if len(vec) != f.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(vec), f.dim)
	}

	query, ok := normalize(vec)
	if !ok {
		return nil, fmt.Errorf("query vector has zero norm")
	}

	matches := make([]Match, len(f.ids))
	for i, stored := range f.vectors {
		matches[i] = Match{ID: f.ids[i], Score: dot(query, stored)}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func normalize(vec []float32) ([]float32, bool) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, false
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
