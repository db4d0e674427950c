package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Chunk type labels exposed to the orchestrator, indexed by hierarchy level.
var chunkTypes = [...]string{"document_summary", "section", "sub_chunk"}

const (
	summaryFallbackLen = 150
	contextSeparator   = "\n---\n"
	emptyDigest        = "no relevant documents found"
)

// SearchResult is the formatted output unit handed to the orchestrator.
type SearchResult struct {
	Text           string  `json:"text"`
	Source         string  `json:"source"`
	Summary        string  `json:"summary"`
	SectionTitle   string  `json:"section_title,omitempty"`
	HierarchyLevel int     `json:"hierarchy_level"`
	RelevanceScore float64 `json:"relevance_score"`
	ChunkType      string  `json:"chunk_type"`
	ParentContext  string  `json:"parent_context,omitempty"`
}

// SummarizedSearch is the result of SearchWithSummary: the ordered results, a
// numbered digest and one combined context string.
type SummarizedSearch struct {
	Results         []SearchResult `json:"results"`
	Digest          string         `json:"digest"`
	CombinedContext string         `json:"combined_context"`
}

func formatResult(sc scoredCandidate, text, parentContext string) SearchResult {
	return SearchResult{
		Text:           text,
		Source:         sc.Source,
		Summary:        summaryFor(sc.Summary, sc.Content),
		SectionTitle:   sc.SectionTitle,
		HierarchyLevel: sc.Level,
		RelevanceScore: math.Round(sc.score*1000) / 1000,
		ChunkType:      chunkTypeFor(sc.Level),
		ParentContext:  parentContext,
	}
}

// chunkTypeFor maps a hierarchy level to its label. Out-of-range levels clamp
// to sub_chunk instead of erroring.
func chunkTypeFor(level int) string {
	if level < 0 || level >= len(chunkTypes) {
		return chunkTypes[len(chunkTypes)-1]
	}
	return chunkTypes[level]
}

// summaryFor returns the stored summary, or the head of the content when the
// ingestion pipeline produced none.
func summaryFor(summary, content string) string {
	if summary != "" {
		return summary
	}
	runes := []rune(content)
	if len(runes) > summaryFallbackLen {
		return string(runes[:summaryFallbackLen])
	}
	return content
}

// SearchWithSummary wraps Search with a digest view. It never errors on empty
// results, only on upstream embedding or store failures.
func (s *Service) SearchWithSummary(ctx context.Context, query string, limit int) (*SummarizedSearch, error) {
	results, err := s.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return &SummarizedSearch{
			Results:         []SearchResult{},
			Digest:          emptyDigest,
			CombinedContext: "",
		}, nil
	}

	var digest strings.Builder
	texts := make([]string, len(results))
	for i, r := range results {
		fmt.Fprintf(&digest, "%d. %s (source: %s)\n", i+1, r.Summary, r.Source)
		texts[i] = r.Text
	}

	return &SummarizedSearch{
		Results:         results,
		Digest:          strings.TrimRight(digest.String(), "\n"),
		CombinedContext: strings.Join(texts, contextSeparator),
	}, nil
}
