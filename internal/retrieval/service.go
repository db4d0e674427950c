// Package retrieval implements the query-time pipeline: embed the query,
// over-fetch nearest neighbors, rerank by composite relevance, reassemble
// section context for sub-chunk hits and format the final results.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/krsache/recall/internal/observability"
	"github.com/krsache/recall/internal/vector"
)

const (
	// DefaultLimit is used when the caller passes a non-positive limit.
	DefaultLimit = 5
	// maxRawLimit caps the over-fetched candidate pool handed to the reranker.
	maxRawLimit = 10
)

// Embedder is the slice of the embedding gateway the service needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is the retrieval core. Construct one at startup and share it; it
// holds no per-query state.
type Service struct {
	embedder Embedder
	repo     vector.Repository
	logger   *zap.Logger
}

// NewService creates a retrieval Service.
func NewService(embedder Embedder, repo vector.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embedder: embedder, repo: repo, logger: logger}
}

// Search runs the full pipeline and returns at most limit formatted results.
// An absent collection yields an empty slice; an exhausted embedding chain or
// a hard store failure is returned as an error.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit < 1 {
		limit = DefaultLimit
	}

	ctx, span := observability.StartSearchSpan(ctx, limit)
	defer span.End()

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rawLimit := 2 * limit
	if rawLimit > maxRawLimit {
		rawLimit = maxRawLimit
	}

	candidates, err := s.repo.Query(ctx, queryVector, rawLimit)
	if err != nil {
		if errors.Is(err, vector.ErrCollectionMissing) {
			s.logger.Info("collection absent, nothing indexed yet")
			observability.RecordSearchResults(span, 0)
			return []SearchResult{}, nil
		}
		observability.RecordError(span, err)
		return nil, fmt.Errorf("vector store query: %w", err)
	}

	scored := rerank(candidates, queryTerms(query), limit)
	results := s.assemble(ctx, scored)

	observability.RecordSearchResults(span, len(results))
	s.logger.Debug("search complete",
		zap.Int("candidates", len(candidates)), zap.Int("results", len(results)))
	return results, nil
}
