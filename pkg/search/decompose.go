package search

import (
	"regexp"
	"strings"
	"time"
)

const maxKeywords = 10

// TimeRange is a closed date interval extracted from a query.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DecomposedQuery is a raw query split into the parts the channels
// consume: a semantic remainder for the vector channel, keyword tokens
// for the graph channel and an optional temporal constraint.
type DecomposedQuery struct {
	Original string     `json:"original"`
	Semantic string     `json:"semantic"`
	Keywords []string   `json:"keywords"`
	Temporal *TimeRange `json:"temporal,omitempty"`
}

var (
	quarterPattern     = regexp.MustCompile(`(?i)Q([1-4])\s*(\d{4})`)
	inQuarterPattern   = regexp.MustCompile(`(?i)\bin\s+Q[1-4]\s*\d{4}`)
	bareQuarterPattern = regexp.MustCompile(`(?i)\bQ[1-4]\s*\d{4}`)
	inTimeframePattern = regexp.MustCompile(`(?i)\bin\s+(timeframe|period)`)
	wordPattern        = regexp.MustCompile(`\b\w+\b`)
)

var stopwords = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"in": {}, "the": {}, "a": {}, "an": {}, "about": {},
	"were": {}, "was": {}, "made": {},
}

// Decompose splits a natural language query for the two search
// channels. Temporal phrasing is stripped from the semantic remainder
// so quarter tokens never leak into the keyword list.
func Decompose(query string) DecomposedQuery {
	decomposed := DecomposedQuery{Original: query}

	if match := quarterPattern.FindStringSubmatch(query); match != nil {
		quarter := int(match[1][0] - '0')
		year, _ := time.Parse("2006", match[2])
		startMonth := time.Month((quarter-1)*3 + 1)
		start := time.Date(year.Year(), startMonth, 1, 0, 0, 0, 0, time.UTC)
		decomposed.Temporal = &TimeRange{
			Start: start,
			End:   start.AddDate(0, 3, -1),
		}
	}

	semantic := inQuarterPattern.ReplaceAllString(query, "")
	semantic = bareQuarterPattern.ReplaceAllString(semantic, "")
	semantic = inTimeframePattern.ReplaceAllString(semantic, "")
	decomposed.Semantic = strings.Join(strings.Fields(semantic), " ")

	for _, word := range wordPattern.FindAllString(strings.ToLower(decomposed.Semantic), -1) {
		if _, stop := stopwords[word]; stop {
			continue
		}
		decomposed.Keywords = append(decomposed.Keywords, word)
		if len(decomposed.Keywords) == maxKeywords {
			break
		}
	}

	return decomposed
}
