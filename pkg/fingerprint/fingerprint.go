package fingerprint

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/lorekeep/lorekeep/internal/util"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

const (
	defaultBloomCapacity           = 100000
	defaultBloomErrorRate          = 0.001
	defaultFuzzyThreshold          = 0.85
	defaultMaxDuplicatesPerPattern = 20

	patternSignatureLength  = 200
	patternSignatureBuckets = 10000
)

// Decision is the verdict for a candidate text against the store.
type Decision string

const (
	// DecisionSkip: exact duplicate, drop the candidate and credit the
	// canonical node with the new source file.
	DecisionSkip Decision = "skip"
	// DecisionMerge: near-duplicate above the fuzzy threshold, fold the
	// candidate into the matched node.
	DecisionMerge Decision = "merge"
	// DecisionCreate: genuinely new content.
	DecisionCreate Decision = "create"
)

// Entry is one registered fingerprint. Identity is (Hash, Kind): the
// same text registered as a decision and as a pattern stays two entries.
// Normalized carries the whitespace-collapsed lowercase text the fuzzy
// layer compares against; it is persisted so near-duplicate detection
// keeps working after a restart.
type Entry struct {
	Hash        uint64
	Kind        knowledge.Kind
	NodeID      string
	Normalized  string
	SourceFiles []string
}

// Evaluation is the result of checking a candidate text.
type Evaluation struct {
	Decision Decision
	Match    *Entry
	Score    float64
}

// Persister mirrors registrations into durable storage so fingerprints
// survive process restarts.
type Persister interface {
	LoadAll(ctx context.Context) ([]Entry, error)
	Upsert(ctx context.Context, entry Entry) error
}

// Options configures a Store. Zero values fall back to the defaults.
type Options struct {
	BloomCapacity           uint
	BloomErrorRate          float64
	FuzzyThreshold          float64
	MaxDuplicatesPerPattern int
}

type entryKey struct {
	hash uint64
	kind knowledge.Kind
}

type candidate struct {
	normalized string
	nodeID     string
}

// Store answers "have we seen this content before" in three layers: a
// bloom filter front door, an exact hash table behind it, and a fuzzy
// edit-distance comparison over same-kind candidates. A bloom false
// positive only costs an extra hash-table lookup; it can never suppress
// genuinely new content.
type Store struct {
	opts Options

	mu            sync.Mutex
	filter        *bloom.BloomFilter
	entries       map[entryKey]*Entry
	byKind        map[knowledge.Kind][]candidate
	patternCounts map[uint64]int

	persist Persister
}

// New creates a Store with the given options and optional persister.
func New(opts Options, persist Persister) *Store {
	if opts.BloomCapacity == 0 {
		opts.BloomCapacity = defaultBloomCapacity
	}
	if opts.BloomErrorRate <= 0 {
		opts.BloomErrorRate = defaultBloomErrorRate
	}
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = defaultFuzzyThreshold
	}
	if opts.MaxDuplicatesPerPattern <= 0 {
		opts.MaxDuplicatesPerPattern = defaultMaxDuplicatesPerPattern
	}

	return &Store{
		opts:          opts,
		filter:        bloom.NewWithEstimates(opts.BloomCapacity, opts.BloomErrorRate),
		entries:       make(map[entryKey]*Entry),
		byKind:        make(map[knowledge.Kind][]candidate),
		patternCounts: make(map[uint64]int),
		persist:       persist,
	}
}

// Load restores all persisted fingerprints into memory. Without a
// persister it is a no-op.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	entries, err := s.persist.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading fingerprints: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range entries {
		e := entries[i]
		s.addLocked(&e)
	}
	logger.Info("[Fingerprint] Restored fingerprints", "count", len(entries))
	return nil
}

// Hash returns the content fingerprint of text: FNV-64a over the
// lowercased, whitespace-collapsed form.
func Hash(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(util.NormalizeText(text)))
	return h.Sum64()
}

// Similarity returns the edit-distance ratio of the two normalized
// texts, in [0, 1].
func Similarity(a, b string) float64 {
	a = util.NormalizeText(a)
	b = util.NormalizeText(b)
	if a == "" && b == "" {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// Evaluate checks a candidate text against the store and returns what to
// do with it. It does not mutate the store.
func (s *Store) Evaluate(text string, kind knowledge.Kind) Evaluation {
	hash := Hash(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter.Test(hashBytes(hash)) {
		if entry, ok := s.entries[entryKey{hash: hash, kind: kind}]; ok {
			return Evaluation{Decision: DecisionSkip, Match: entry, Score: 1}
		}
		// Bloom false positive, fall through to the fuzzy layer.
	}

	normalized := util.NormalizeText(text)
	bestScore := 0.0
	var bestID string
	for _, cand := range s.byKind[kind] {
		score := similarityNormalized(normalized, cand.normalized)
		if score > bestScore {
			bestScore = score
			bestID = cand.nodeID
		}
	}

	if bestID != "" && bestScore >= s.opts.FuzzyThreshold {
		match := s.lookupByNodeLocked(kind, bestID)
		return Evaluation{Decision: DecisionMerge, Match: match, Score: bestScore}
	}
	return Evaluation{Decision: DecisionCreate, Score: bestScore}
}

// Register records a new canonical text under nodeID.
func (s *Store) Register(ctx context.Context, text string, kind knowledge.Kind, nodeID, sourceFile string) error {
	entry := &Entry{
		Hash:       Hash(text),
		Kind:       kind,
		NodeID:     nodeID,
		Normalized: util.NormalizeText(text),
	}

	s.mu.Lock()
	s.addLocked(entry)
	if sourceFile != "" {
		entry.SourceFiles = appendUnique(entry.SourceFiles, sourceFile)
	}
	snapshot := *entry
	s.mu.Unlock()

	return s.persistEntry(ctx, snapshot)
}

// RecordDuplicate credits an existing entry with another source file.
func (s *Store) RecordDuplicate(ctx context.Context, entry *Entry, sourceFile string) error {
	if entry == nil {
		return fmt.Errorf("duplicate entry is nil")
	}

	s.mu.Lock()
	if sourceFile != "" {
		entry.SourceFiles = appendUnique(entry.SourceFiles, sourceFile)
	}
	snapshot := *entry
	s.mu.Unlock()

	return s.persistEntry(ctx, snapshot)
}

// ShouldSkipPattern reports whether this content's leading signature has
// already appeared more than the configured limit, and counts the
// occurrence. Boilerplate repeated across hundreds of files stops
// producing candidates once the bucket overflows.
func (s *Store) ShouldSkipPattern(text string) bool {
	normalized := util.NormalizeText(text)
	if len(normalized) > patternSignatureLength {
		normalized = normalized[:patternSignatureLength]
	}
	h := fnv.New64a()
	h.Write([]byte(normalized))
	bucket := h.Sum64() % patternSignatureBuckets

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patternCounts[bucket]++
	return s.patternCounts[bucket] > s.opts.MaxDuplicatesPerPattern
}

// Size returns the number of registered entries.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) addLocked(entry *Entry) {
	key := entryKey{hash: entry.Hash, kind: entry.Kind}
	if existing, ok := s.entries[key]; ok {
		for _, f := range entry.SourceFiles {
			existing.SourceFiles = appendUnique(existing.SourceFiles, f)
		}
		return
	}
	s.entries[key] = entry
	s.filter.Add(hashBytes(entry.Hash))
	if entry.Normalized != "" {
		s.byKind[entry.Kind] = append(s.byKind[entry.Kind], candidate{
			normalized: entry.Normalized,
			nodeID:     entry.NodeID,
		})
	}
}

func (s *Store) lookupByNodeLocked(kind knowledge.Kind, nodeID string) *Entry {
	for _, entry := range s.entries {
		if entry.Kind == kind && entry.NodeID == nodeID {
			return entry
		}
	}
	return nil
}

func (s *Store) persistEntry(ctx context.Context, entry Entry) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("persisting fingerprint %x: %w", entry.Hash, err)
	}
	return nil
}

func similarityNormalized(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func hashBytes(hash uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], hash)
	return buf[:]
}

func appendUnique(files []string, file string) []string {
	for _, existing := range files {
		if existing == file {
			return files
		}
	}
	return append(files, file)
}
