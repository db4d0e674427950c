// Package embedding turns text into fixed-dimension vectors, masking
// provider and model instability behind retry and model fallback.
package embedding

import "context"

// Dimension is the embedding width shared by every chunk and every query.
const Dimension = 1024

// Client is the interface an embedding backend must implement.
type Client interface {
	// EmbedText returns the embedding vector for text using the given model.
	EmbedText(ctx context.Context, model, text string) ([]float32, error)
}
