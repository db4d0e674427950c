package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/krsache/recall/internal/vector"
)

// resolveText picks the text surfaced for a candidate and reports whether its
// parent section still needs to be fetched. Precedence: a populated fullText
// wins; a sub-chunk with a parent keeps its own content and asks for the
// parent's section text; everything else surfaces content as-is.
func resolveText(c vector.Candidate) (text string, needsParent bool) {
	if c.FullText != "" {
		return c.FullText, false
	}
	if c.Level == vector.LevelSubChunk && c.ParentID != "" {
		return c.Content, true
	}
	return c.Content, false
}

// assemble resolves parent context for the scored top-k and formats the final
// results. Each unique parent id is fetched exactly once; a failed or missing
// parent degrades to no parent context for the results that reference it.
func (s *Service) assemble(ctx context.Context, scored []scoredCandidate) []SearchResult {
	texts := make([]string, len(scored))
	needed := make([]string, 0, len(scored))
	seen := make(map[string]bool)

	for i, sc := range scored {
		text, needsParent := resolveText(sc.Candidate)
		texts[i] = text
		if needsParent && !seen[sc.ParentID] {
			seen[sc.ParentID] = true
			needed = append(needed, sc.ParentID)
		}
	}

	parents := make(map[string]string, len(needed))
	for _, id := range needed {
		parent, err := s.repo.FetchByChunkID(ctx, id)
		if err != nil {
			s.logger.Warn("parent fetch failed", zap.String("parent_id", id), zap.Error(err))
			continue
		}
		if parent == nil {
			// A sub-chunk pointing at a nonexistent section is a
			// data-integrity fault in the indexed corpus.
			s.logger.Warn("parent chunk not found", zap.String("parent_id", id))
			continue
		}
		switch {
		case parent.FullText != "":
			parents[id] = parent.FullText
		default:
			parents[id] = parent.Content
		}
	}

	results := make([]SearchResult, len(scored))
	for i, sc := range scored {
		parentContext := ""
		if sc.Level == vector.LevelSubChunk && sc.ParentID != "" {
			parentContext = parents[sc.ParentID]
		}
		results[i] = formatResult(sc, texts[i], parentContext)
	}
	return results
}
