package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/krsache/recall/internal/observability"
	"github.com/krsache/recall/internal/retry"
)

// ErrAllModelsFailed is returned when every configured model has exhausted
// its retries for a single embed call.
var ErrAllModelsFailed = errors.New("all embedding models failed")

// Gateway produces embeddings through a primary model with ordered fallbacks.
// The most recently successful model is remembered ("sticky") and tried first
// on the next call; the pointer is shared across concurrent calls.
type Gateway struct {
	client    Client
	primary   string
	fallbacks []string
	policy    retry.Policy
	logger    *zap.Logger

	mu      sync.Mutex
	working string // sticky model, empty until the first success
}

// NewGateway creates a Gateway. policy governs the per-model retry loop;
// a zero MaxAttempts falls back to 3 attempts.
func NewGateway(client Client, primary string, fallbacks []string, policy retry.Policy, logger *zap.Logger) *Gateway {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:    client,
		primary:   primary,
		fallbacks: fallbacks,
		policy:    policy,
		logger:    logger,
	}
}

// Embed returns the embedding vector for text. The sticky model (if any) is
// attempted first; a sticky failure clears the pointer and the full
// primary-then-fallbacks chain is walked fresh. Each model gets the policy's
// full retry budget before the next model is tried.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	sticky := g.WorkingModel()

	chain := make([]string, 0, len(g.fallbacks)+2)
	if sticky != "" {
		chain = append(chain, sticky)
	}
	chain = append(chain, g.primary)
	chain = append(chain, g.fallbacks...)

	var lastErr error
	for i, model := range chain {
		vec, err := g.tryModel(ctx, model, text)
		if err == nil {
			g.setWorking(model)
			return vec, nil
		}
		lastErr = err

		if i == 0 && sticky != "" {
			// Sticky model went bad; forget it and probe from the primary.
			g.clearWorking(sticky)
			g.logger.Warn("sticky embedding model failed, falling back",
				zap.String("model", model), zap.Error(err))
		} else {
			g.logger.Warn("embedding model failed, trying next",
				zap.String("model", model), zap.Error(err))
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
}

// EmbedBatch embeds each text sequentially. The first unrecoverable failure
// aborts the whole batch.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := g.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d/%d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// WorkingModel returns the current sticky model, or "" when unset.
func (g *Gateway) WorkingModel() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.working
}

// Chain returns the configured model order: primary first, then fallbacks.
func (g *Gateway) Chain() []string {
	chain := make([]string, 0, len(g.fallbacks)+1)
	chain = append(chain, g.primary)
	chain = append(chain, g.fallbacks...)
	return chain
}

func (g *Gateway) tryModel(ctx context.Context, model, text string) ([]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, model)
	defer span.End()

	var vec []float32
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		v, err := g.client.EmbedText(ctx, model, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return vec, nil
}

func (g *Gateway) setWorking(model string) {
	g.mu.Lock()
	g.working = model
	g.mu.Unlock()
}

// clearWorking resets the sticky pointer only if it still points at the model
// that just failed, so a concurrent success is not thrown away.
func (g *Gateway) clearWorking(model string) {
	g.mu.Lock()
	if g.working == model {
		g.working = ""
	}
	g.mu.Unlock()
}
