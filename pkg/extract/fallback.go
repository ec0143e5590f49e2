package extract

import (
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

const (
	fallbackMinContent  = 10
	fallbackGenericMin  = 50
	fallbackCachePrefix = 1000
)

var fallbackDecisionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)decided to (.+?)(?:\.|,|;|because|$)`),
	regexp.MustCompile(`(?i)chose (.+?)(?:\.|,|;|because|over|$)`),
	regexp.MustCompile(`(?i)selected (.+?)(?:\.|,|;|for|$)`),
	regexp.MustCompile(`(?i)went with (.+?)(?:\.|,|;|instead|$)`),
	regexp.MustCompile(`(?i)picked (.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)using (.+?) (?:for|because|instead)`),
}

var fallbackPatternPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)always (.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)pattern (?:of |is )?(.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)approach (?:is |involves )?(.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)strategy (?:is |for )?(.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)convention (?:of |is )?(.+?)(?:\.|,|;|$)`),
}

var fallbackFailurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)failed to (.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)didn't work (.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)broke (.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)error (?:in |with )?(.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)bug (?:in |with )?(.+?)(?:\.|,|;|$)`),
	regexp.MustCompile(`(?i)issue (?:with |in )?(.+?)(?:\.|,|;|$)`),
}

// KeywordFallback extracts knowledge drafts with plain regex matching.
// It is the deterministic path the ingestion worker takes when the
// classifier breaker is open, so it must never call out anywhere.
type KeywordFallback struct {
	mu    sync.Mutex
	cache map[uint64]*knowledge.Node

	CacheHits   int
	Extractions int
}

// NewKeywordFallback returns an extractor with an empty process-lifetime
// cache.
func NewKeywordFallback() *KeywordFallback {
	return &KeywordFallback{cache: make(map[uint64]*knowledge.Node)}
}

// Extract derives a draft node from raw text. The returned node has no
// ID; the caller assigns one after the duplicate check. Returns nil when
// the text is too short to carry anything.
func (f *KeywordFallback) Extract(content string) *knowledge.Node {
	if len(strings.TrimSpace(content)) < fallbackMinContent {
		return nil
	}

	key := fallbackCacheKey(content)

	f.mu.Lock()
	if cached, ok := f.cache[key]; ok {
		f.CacheHits++
		f.mu.Unlock()
		if cached == nil {
			return nil
		}
		clone := *cached
		return &clone
	}
	f.mu.Unlock()

	node := f.extract(content)

	f.mu.Lock()
	f.cache[key] = node
	if node != nil {
		f.Extractions++
	}
	f.mu.Unlock()

	if node == nil {
		return nil
	}
	clone := *node
	return &clone
}

func (f *KeywordFallback) extract(content string) *knowledge.Node {
	// Decisions are the most common signal, so they are tried first.
	if match := firstMatch(fallbackDecisionPatterns, content, 200); match != "" {
		return &knowledge.Node{
			Kind:        knowledge.KindDecision,
			Description: match,
			Rationale:   "Extracted from conversation context",
		}
	}

	if match := firstMatch(fallbackPatternPatterns, content, 100); match != "" {
		return &knowledge.Node{
			Kind:           knowledge.KindPattern,
			Name:           match,
			Context:        "Technical conversation",
			Implementation: clip(content, 500),
		}
	}

	if match := firstMatch(fallbackFailurePatterns, content, 200); match != "" {
		return &knowledge.Node{
			Kind:          knowledge.KindFailure,
			Attempt:       match,
			ReasonFailed:  "See conversation context",
			LessonLearned: "Extracted from technical discussion",
		}
	}

	// Nothing matched but the text is substantial; keep it as a generic
	// pattern rather than losing it.
	if len(content) > fallbackGenericMin {
		name := strings.TrimSpace(clip(content, 80))
		if len(content) > 80 {
			name += "..."
		}
		return &knowledge.Node{
			Kind:           knowledge.KindPattern,
			Name:           name,
			Context:        "Technical discussion",
			Implementation: clip(content, 800),
		}
	}

	return nil
}

func firstMatch(patterns []*regexp.Regexp, content string, limit int) string {
	for _, pattern := range patterns {
		if match := pattern.FindStringSubmatch(content); match != nil {
			return strings.TrimSpace(clip(match[1], limit))
		}
	}
	return ""
}

func clip(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func fallbackCacheKey(content string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(clip(content, fallbackCachePrefix)))
	return h.Sum64()
}
