// Package embedding wraps a Genkit embedder behind a degrade-not-fail API.
//
// The embedder is an expensive, process-wide resource. It is created once at
// startup (see internal/app) and injected into every component that needs
// vectors; nothing in this package constructs its own client.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

// embedTimeout bounds a single embedding call.
const embedTimeout = 15 * time.Second

// Provider generates query and document embeddings with a fixed dimension.
//
// Provider is safe for concurrent use by multiple goroutines.
type Provider struct {
	embedder ai.Embedder
	dim      int32
	logger   *slog.Logger
}

// New creates a Provider. dim must match the vector column width in the
// corpus schema.
func New(embedder ai.Embedder, dim int32, logger *slog.Logger) (*Provider, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dim < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{embedder: embedder, dim: dim, logger: logger}, nil
}

// Dimension returns the configured vector width.
func (p *Provider) Dimension() int32 {
	return p.dim
}

// Embed returns the embedding vector for text.
//
// Degrade-not-fail: if the upstream embedder fails, Embed logs a warning and
// returns a zero vector of the configured dimension with a nil error. The
// caller's similarity search proceeds and simply matches nothing meaningful.
// Context cancellation is the one condition that still surfaces as an error.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	dim := p.dim
	resp, err := p.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.logger.Warn("embedding failed, using zero vector", "error", err, "text_len", len(text))
		return make([]float32, p.dim), nil
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		p.logger.Warn("empty embedding response, using zero vector", "text_len", len(text))
		return make([]float32, p.dim), nil
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != int(p.dim) {
		// Providers that ignore OutputDimensionality would silently corrupt
		// the corpus; treat the mismatch like any other embed failure.
		p.logger.Warn("embedding dimension mismatch, using zero vector",
			"want", p.dim, "got", len(vec))
		return make([]float32, p.dim), nil
	}

	return vec, nil
}
