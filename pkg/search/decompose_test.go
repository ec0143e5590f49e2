package search

import (
	"testing"
	"time"
)

func TestDecomposeQuarterQuery(t *testing.T) {
	decomposed := Decompose("Redis caching Q3 2024")

	if decomposed.Temporal == nil {
		t.Fatalf("expected a temporal constraint")
	}
	wantStart := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	if !decomposed.Temporal.Start.Equal(wantStart) {
		t.Fatalf("expected start %v, got %v", wantStart, decomposed.Temporal.Start)
	}
	if !decomposed.Temporal.End.Equal(wantEnd) {
		t.Fatalf("expected end %v, got %v", wantEnd, decomposed.Temporal.End)
	}

	for _, keyword := range decomposed.Keywords {
		if keyword == "q3" || keyword == "2024" {
			t.Fatalf("temporal token %q leaked into keywords", keyword)
		}
	}
	if len(decomposed.Keywords) != 2 || decomposed.Keywords[0] != "redis" || decomposed.Keywords[1] != "caching" {
		t.Fatalf("unexpected keywords: %v", decomposed.Keywords)
	}
}

func TestDecomposeQuarterEndsRespectMonthLengths(t *testing.T) {
	cases := []struct {
		query string
		end   time.Time
	}{
		{"decisions in Q1 2024", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
		{"decisions in Q2 2024", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)},
		{"decisions in Q4 2023", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		decomposed := Decompose(tc.query)
		if decomposed.Temporal == nil {
			t.Fatalf("%q: expected temporal constraint", tc.query)
		}
		if !decomposed.Temporal.End.Equal(tc.end) {
			t.Fatalf("%q: expected end %v, got %v", tc.query, tc.end, decomposed.Temporal.End)
		}
	}
}

func TestDecomposeFiltersStopwords(t *testing.T) {
	decomposed := Decompose("what decisions were made about the caching layer")

	if decomposed.Temporal != nil {
		t.Fatalf("expected no temporal constraint")
	}
	want := []string{"decisions", "caching", "layer"}
	if len(decomposed.Keywords) != len(want) {
		t.Fatalf("expected %v, got %v", want, decomposed.Keywords)
	}
	for i, keyword := range want {
		if decomposed.Keywords[i] != keyword {
			t.Fatalf("expected %v, got %v", want, decomposed.Keywords)
		}
	}
}

func TestDecomposeCapsKeywordCount(t *testing.T) {
	decomposed := Decompose("alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu")
	if len(decomposed.Keywords) != maxKeywords {
		t.Fatalf("expected %d keywords, got %d", maxKeywords, len(decomposed.Keywords))
	}
}

func TestDecomposeStripsTimeframePhrasing(t *testing.T) {
	decomposed := Decompose("failures in period")
	for _, keyword := range decomposed.Keywords {
		if keyword == "period" {
			t.Fatalf("timeframe phrasing leaked into keywords: %v", decomposed.Keywords)
		}
	}
}
