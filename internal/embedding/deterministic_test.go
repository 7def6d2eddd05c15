package embedding

import (
	"context"
	"math"
	"testing"
)

func TestDeterministicReproducible(t *testing.T) {
	e := NewDeterministic()
	ctx := context.Background()

	a, err := e.Embed(ctx, "the sky appears blue due to Rayleigh scattering")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, "the sky appears blue due to Rayleigh scattering")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a) != Dimension {
		t.Fatalf("dimension = %d, want %d", len(a), Dimension)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestDeterministicUnitNorm(t *testing.T) {
	e := NewDeterministic()

	for _, text := range []string{
		"cats are mammals",
		"x",
		"知識は力なり。これは日本語の文です。",
	} {
		vec, err := e.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
		var sum float64
		for _, x := range vec {
			sum += float64(x) * float64(x)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
			t.Errorf("Embed(%q) norm = %v, want 1", text, math.Sqrt(sum))
		}
	}
}

func TestDeterministicEmptyText(t *testing.T) {
	e := NewDeterministic()
	if _, err := e.Embed(context.Background(), "   \n\t "); err == nil {
		t.Fatal("expected error for whitespace-only text")
	}
}

func TestSharedVocabularyScoresHigher(t *testing.T) {
	e := NewDeterministic()
	ctx := context.Background()

	cats, _ := e.Embed(ctx, "cats are mammals")
	dogs, _ := e.Embed(ctx, "dogs are mammals")
	paris, _ := e.Embed(ctx, "Paris is a city")
	query, _ := e.Embed(ctx, "mammal")

	if Cosine(query, cats) <= Cosine(query, paris) {
		t.Errorf("mammal/cats %v should beat mammal/paris %v",
			Cosine(query, cats), Cosine(query, paris))
	}
	if Cosine(query, dogs) <= Cosine(query, paris) {
		t.Errorf("mammal/dogs %v should beat mammal/paris %v",
			Cosine(query, dogs), Cosine(query, paris))
	}
}

func TestCosineClipping(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{-1, 0}
	if got := Cosine(a, b); got != 0 {
		t.Errorf("negative similarity should clip to 0, got %v", got)
	}
	if got := Cosine(a, a); got != 1 {
		t.Errorf("self similarity = %v, want 1", got)
	}
	if got := Cosine(a, []float32{1}); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
}
