package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krsache/recall/internal/retry"
)

// scriptedClient fails or succeeds per model and records every attempt.
type scriptedClient struct {
	failing  map[string]bool
	attempts []string
}

func (c *scriptedClient) EmbedText(ctx context.Context, model, text string) ([]float32, error) {
	c.attempts = append(c.attempts, model)
	if c.failing[model] {
		return nil, errors.New("503 Service Unavailable")
	}
	return make([]float32, Dimension), nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Delay: time.Microsecond, MaxDelay: time.Millisecond}
}

func newTestGateway(client Client) *Gateway {
	return NewGateway(client, "primary-model", []string{"fallback-a", "fallback-b"}, fastPolicy(), nil)
}

func TestEmbed_PrimarySucceeds(t *testing.T) {
	client := &scriptedClient{failing: map[string]bool{}}
	g := newTestGateway(client)

	vec, err := g.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != Dimension {
		t.Errorf("vector dimension = %d, want %d", len(vec), Dimension)
	}
	if g.WorkingModel() != "primary-model" {
		t.Errorf("sticky = %q, want primary-model", g.WorkingModel())
	}
	if len(client.attempts) != 1 {
		t.Errorf("attempts = %v, want single primary attempt", client.attempts)
	}
}

func TestEmbed_FallsBackInOrder(t *testing.T) {
	client := &scriptedClient{failing: map[string]bool{
		"primary-model": true,
		"fallback-a":    true,
	}}
	g := newTestGateway(client)

	if _, err := g.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.WorkingModel() != "fallback-b" {
		t.Errorf("sticky = %q, want fallback-b", g.WorkingModel())
	}

	// Each failing model burns its full retry budget before the next model.
	want := []string{
		"primary-model", "primary-model", "primary-model",
		"fallback-a", "fallback-a", "fallback-a",
		"fallback-b",
	}
	if len(client.attempts) != len(want) {
		t.Fatalf("attempts = %v, want %v", client.attempts, want)
	}
	for i := range want {
		if client.attempts[i] != want[i] {
			t.Fatalf("attempt %d = %q, want %q", i, client.attempts[i], want[i])
		}
	}
}

func TestEmbed_StickyTriedFirst(t *testing.T) {
	client := &scriptedClient{failing: map[string]bool{"primary-model": true}}
	g := newTestGateway(client)

	if _, err := g.Embed(context.Background(), "warm up"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.WorkingModel() != "fallback-a" {
		t.Fatalf("sticky = %q, want fallback-a", g.WorkingModel())
	}

	client.attempts = nil
	if _, err := g.Embed(context.Background(), "again"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.attempts) != 1 || client.attempts[0] != "fallback-a" {
		t.Errorf("attempts = %v, want single sticky attempt", client.attempts)
	}
}

func TestEmbed_StickyFailureRewalksFromPrimary(t *testing.T) {
	client := &scriptedClient{failing: map[string]bool{"primary-model": true}}
	g := newTestGateway(client)

	if _, err := g.Embed(context.Background(), "warm up"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Sticky model goes bad; primary has recovered.
	client.failing["fallback-a"] = true
	client.failing["primary-model"] = false
	client.attempts = nil

	if _, err := g.Embed(context.Background(), "again"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.WorkingModel() != "primary-model" {
		t.Errorf("sticky = %q, want primary-model after re-walk", g.WorkingModel())
	}

	// Sticky burns its budget, then the chain restarts at the primary.
	want := []string{"fallback-a", "fallback-a", "fallback-a", "primary-model"}
	if len(client.attempts) != len(want) {
		t.Fatalf("attempts = %v, want %v", client.attempts, want)
	}
	for i := range want {
		if client.attempts[i] != want[i] {
			t.Fatalf("attempt %d = %q, want %q", i, client.attempts[i], want[i])
		}
	}
}

func TestEmbed_AllModelsFailed(t *testing.T) {
	client := &scriptedClient{failing: map[string]bool{
		"primary-model": true,
		"fallback-a":    true,
		"fallback-b":    true,
	}}
	g := newTestGateway(client)

	_, err := g.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrAllModelsFailed) {
		t.Fatalf("expected ErrAllModelsFailed, got %v", err)
	}
	if g.WorkingModel() != "" {
		t.Errorf("sticky should stay unset after total failure, got %q", g.WorkingModel())
	}
}

func TestEmbedBatch_AbortsOnFirstFailure(t *testing.T) {
	calls := 0
	client := clientFunc(func(ctx context.Context, model, text string) ([]float32, error) {
		calls++
		if text == "bad" {
			return nil, errors.New("400 Bad Request")
		}
		return make([]float32, Dimension), nil
	})
	g := NewGateway(client, "only-model", nil, fastPolicy(), nil)

	_, err := g.EmbedBatch(context.Background(), []string{"ok", "bad", "never"})
	if !errors.Is(err, ErrAllModelsFailed) {
		t.Fatalf("expected ErrAllModelsFailed, got %v", err)
	}
	// "ok" once, "bad" once (non-retryable); "never" is not attempted.
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestEmbedBatch_ReturnsAllVectors(t *testing.T) {
	client := &scriptedClient{failing: map[string]bool{}}
	g := newTestGateway(client)

	vectors, err := g.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Errorf("vectors = %d, want 3", len(vectors))
	}
}

// clientFunc adapts a function to the Client interface.
type clientFunc func(ctx context.Context, model, text string) ([]float32, error)

func (f clientFunc) EmbedText(ctx context.Context, model, text string) ([]float32, error) {
	return f(ctx, model, text)
}
