package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the embedding model used when none is configured.
// gemini-embedding-001 supports truncation to smaller dimensions via
// OutputDimensionality, which we pin to the store Dimension.
const DefaultGeminiModel = "gemini-embedding-001"

// Gemini embeds text through the Gemini API. It satisfies Embedder and is
// a drop-in replacement for Deterministic wherever real semantic
// similarity is wanted.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int32
}

// NewGemini creates a Gemini embedder. model may be empty to use
// DefaultGeminiModel.
func NewGemini(client *genai.Client, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model, dim: Dimension}
}

// Dimension returns the configured output dimensionality.
func (g *Gemini) Dimension() int { return int(g.dim) }

// Embed requests an embedding from the API, truncated to Dimension, and
// normalizes it (truncated Matryoshka embeddings lose unit norm).
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	dim := g.dim
	resp, err := g.client.Models.EmbedContent(ctx, g.model,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response for %d-char text", len(text))
	}

	vec := resp.Embeddings[0].Values
	if len(vec) != int(g.dim) {
		return nil, fmt.Errorf("embedding dimension %d, want %d", len(vec), g.dim)
	}

	return Normalize(vec), nil
}
