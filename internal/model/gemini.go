package model

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiGenModel is the generation model used when none is
// configured.
const DefaultGeminiGenModel = "gemini-2.5-flash"

// GeminiBackend routes requests to the Gemini API. It satisfies Backend.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini backend. model may be empty to use
// DefaultGeminiGenModel.
func NewGeminiBackend(client *genai.Client, model string) *GeminiBackend {
	if model == "" {
		model = DefaultGeminiGenModel
	}
	return &GeminiBackend{client: client, model: model}
}

// Name returns the configured model identifier.
func (g *GeminiBackend) Name() string { return g.model }

func (g *GeminiBackend) config(req GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

// Generate performs a single blocking completion.
func (g *GeminiBackend) Generate(ctx context.Context, req GenerateRequest) (Completion, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(req.Prompt), g.config(req))
	if err != nil {
		return Completion{}, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return Completion{}, fmt.Errorf("empty response from %s", g.model)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return Completion{Text: text, TokensUsed: tokens}, nil
}

// Stream yields the completion incrementally. The returned channel closes
// when the stream ends; a stream error is delivered as the final chunk.
func (g *GeminiBackend) Stream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model,
			genai.Text(req.Prompt), g.config(req)) {
			if err != nil {
				select {
				case out <- StreamChunk{Err: fmt.Errorf("stream content: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case out <- StreamChunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
