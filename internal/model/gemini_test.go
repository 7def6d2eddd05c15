package model

import "testing"

// Compile-time check that the Gemini backend satisfies Backend, value
// semantics included.
var _ Backend = (*GeminiBackend)(nil)

func TestNewGeminiBackendDefaultsModel(t *testing.T) {
	g := NewGeminiBackend(nil, "")
	if g.Name() != DefaultGeminiGenModel {
		t.Errorf("Name() = %q, want %q", g.Name(), DefaultGeminiGenModel)
	}

	g = NewGeminiBackend(nil, "gemini-2.5-pro")
	if g.Name() != "gemini-2.5-pro" {
		t.Errorf("Name() = %q, want configured model", g.Name())
	}
}

func TestGeminiConfigMapsRequest(t *testing.T) {
	g := NewGeminiBackend(nil, "")

	cfg := g.config(GenerateRequest{Temperature: 0.2, MaxTokens: 128})
	if cfg.Temperature == nil || *cfg.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 128 {
		t.Errorf("MaxOutputTokens = %d, want 128", cfg.MaxOutputTokens)
	}

	cfg = g.config(GenerateRequest{})
	if cfg.Temperature != nil {
		t.Error("zero temperature should be left unset")
	}
	if cfg.MaxOutputTokens != 0 {
		t.Errorf("MaxOutputTokens = %d, want unset", cfg.MaxOutputTokens)
	}
}
