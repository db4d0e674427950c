package retrieval

import (
	"math"
	"testing"

	"github.com/krsache/recall/internal/vector"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreCandidate_BaseClamped(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     float64
	}{
		{"zero_distance", 0, 1.0},
		{"half", 0.5, 0.5},
		{"unit", 1.0, 0.0},
		{"beyond_unit", 1.7, 0.0}, // never negative
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := vector.Candidate{Distance: tt.distance}
			if got := scoreCandidate(c, nil); !almostEqual(got, tt.want) {
				t.Errorf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreCandidate_HierarchyBonus(t *testing.T) {
	tests := []struct {
		level int
		want  float64
	}{
		{0, 0.0},
		{1, 0.30},
		{2, 0.15},
	}
	for _, tt := range tests {
		c := vector.Candidate{Chunk: vector.Chunk{Level: tt.level}, Distance: 1.0}
		if got := scoreCandidate(c, nil); !almostEqual(got, tt.want) {
			t.Errorf("level %d: score = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestScoreCandidate_SummaryBonus(t *testing.T) {
	long := make([]byte, 51)
	for i := range long {
		long[i] = 'x'
	}
	tests := []struct {
		name    string
		summary string
		want    float64
	}{
		{"empty", "", 0.0},
		{"short", "tiny", 0.0},
		{"boundary_50", string(long[:50]), 0.0},
		{"over_50", string(long), 0.20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := vector.Candidate{Chunk: vector.Chunk{Summary: tt.summary}, Distance: 1.0}
			if got := scoreCandidate(c, nil); !almostEqual(got, tt.want) {
				t.Errorf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreCandidate_KeywordBonus(t *testing.T) {
	// 5 distinct terms, 3 appear in content: bonus = 3 * 0.05 = 0.15.
	c := vector.Candidate{
		Chunk:    vector.Chunk{Content: "Refunds are processed by the billing team"},
		Distance: 1.0,
	}
	terms := queryTerms("refunds billing team warranty shipping")
	if got := scoreCandidate(c, terms); !almostEqual(got, 0.15) {
		t.Errorf("score = %v, want 0.15", got)
	}
}

func TestScoreCandidate_KeywordBonusCapped(t *testing.T) {
	c := vector.Candidate{
		Chunk:    vector.Chunk{Content: "a b c d e f g h"},
		Distance: 1.0,
	}
	terms := queryTerms("a b c d e f g h")
	if got := scoreCandidate(c, terms); !almostEqual(got, 0.30) {
		t.Errorf("score = %v, want capped 0.30", got)
	}
}

func TestScoreCandidate_SectionTitleMatches(t *testing.T) {
	c := vector.Candidate{
		Chunk:    vector.Chunk{SectionTitle: "Warranty Policy"},
		Distance: 1.0,
	}
	terms := queryTerms("warranty")
	if got := scoreCandidate(c, terms); !almostEqual(got, 0.05) {
		t.Errorf("score = %v, want 0.05", got)
	}
}

func TestScoreCandidate_BonusesStackPastOne(t *testing.T) {
	long := make([]rune, 60)
	for i := range long {
		long[i] = 's'
	}
	c := vector.Candidate{
		Chunk: vector.Chunk{
			Level:   vector.LevelSection,
			Summary: string(long),
			Content: "billing refunds",
		},
		Distance: 0.1,
	}
	got := scoreCandidate(c, queryTerms("billing refunds"))
	want := 0.9 + 0.30 + 0.20 + 0.10
	if !almostEqual(got, want) {
		t.Errorf("score = %v, want %v (no upper clamp)", got, want)
	}
	if got <= 1.0 {
		t.Error("stacked bonuses should be allowed to exceed 1.0")
	}
}

func TestQueryTerms_DistinctLowercased(t *testing.T) {
	terms := queryTerms("Billing billing REFUND refund  policy")
	want := []string{"billing", "refund", "policy"}
	if len(terms) != len(want) {
		t.Fatalf("terms = %v, want %v", terms, want)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("term %d = %q, want %q", i, terms[i], want[i])
		}
	}
}

func TestRerank_OrdersAndTruncates(t *testing.T) {
	candidates := []vector.Candidate{
		{Chunk: vector.Chunk{ChunkID: "far"}, Distance: 0.9},
		{Chunk: vector.Chunk{ChunkID: "near"}, Distance: 0.1},
		{Chunk: vector.Chunk{ChunkID: "mid"}, Distance: 0.5},
	}
	scored := rerank(candidates, nil, 2)
	if len(scored) != 2 {
		t.Fatalf("len = %d, want 2", len(scored))
	}
	if scored[0].ChunkID != "near" || scored[1].ChunkID != "mid" {
		t.Errorf("order = [%s %s], want [near mid]", scored[0].ChunkID, scored[1].ChunkID)
	}
}

func TestRerank_TiesKeepStoreOrder(t *testing.T) {
	candidates := []vector.Candidate{
		{Chunk: vector.Chunk{ChunkID: "first"}, Distance: 0.4},
		{Chunk: vector.Chunk{ChunkID: "second"}, Distance: 0.4},
		{Chunk: vector.Chunk{ChunkID: "third"}, Distance: 0.4},
	}
	scored := rerank(candidates, nil, 3)
	for i, want := range []string{"first", "second", "third"} {
		if scored[i].ChunkID != want {
			t.Errorf("position %d = %s, want %s (stable sort)", i, scored[i].ChunkID, want)
		}
	}
}
