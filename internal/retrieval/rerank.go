package retrieval

import (
	"sort"
	"strings"

	"github.com/krsache/recall/internal/vector"
)

// Composite score weights. The total is deliberately not clamped to 1.0:
// stacked bonuses can push a strong section hit past 1.0 and callers rely on
// the relative ordering, not an absolute range.
const (
	sectionBonus    = 0.30
	subChunkBonus   = 0.15
	summaryBonus    = 0.20
	minSummaryLen   = 50
	keywordWeight   = 0.05
	maxKeywordBonus = 0.30
)

// scoredCandidate pairs a candidate with its computed relevance score.
// Ephemeral, per query.
type scoredCandidate struct {
	vector.Candidate
	score float64
}

// queryTerms normalizes a query into its distinct lowercased terms.
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}

// scoreCandidate computes the composite relevance score: clamped distance
// base plus hierarchy, summary and keyword bonuses.
func scoreCandidate(c vector.Candidate, terms []string) float64 {
	base := 1 - c.Distance
	if base < 0 {
		base = 0
	}

	score := base

	switch c.Level {
	case vector.LevelSection:
		score += sectionBonus
	case vector.LevelSubChunk:
		score += subChunkBonus
	}

	if len(c.Summary) > minSummaryLen {
		score += summaryBonus
	}

	content := strings.ToLower(c.Content)
	title := strings.ToLower(c.SectionTitle)
	matches := 0
	for _, term := range terms {
		if strings.Contains(content, term) || strings.Contains(title, term) {
			matches++
		}
	}
	bonus := float64(matches) * keywordWeight
	if bonus > maxKeywordBonus {
		bonus = maxKeywordBonus
	}
	score += bonus

	return score
}

// rerank scores candidates, orders them best-first and truncates to limit.
// Ties keep the store's original relative order.
func rerank(candidates []vector.Candidate, terms []string, limit int) []scoredCandidate {
	scored := make([]scoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = scoredCandidate{Candidate: c, score: scoreCandidate(c, terms)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
