package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Deterministic is a reproducible pseudo-embedder: it projects word and
// character-trigram features into a fixed-length vector by feature hashing.
//
// It carries no semantic model. Texts sharing vocabulary land near each
// other, which is enough for the retrieval contracts to hold and for tests
// to be reproducible. Swap in Gemini for real similarity; the store only
// sees the Embedder interface.
type Deterministic struct {
	dim int
}

// NewDeterministic creates a deterministic embedder with the package
// Dimension.
func NewDeterministic() *Deterministic {
	return &Deterministic{dim: Dimension}
}

// Dimension returns the vector length.
func (d *Deterministic) Dimension() int { return d.dim }

// Embed projects text into a normalized vector. The same text always
// produces the same vector.
func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}

	vec := make([]float32, d.dim)
	for _, tok := range tokens {
		addFeature(vec, tok, 1.0)
		runes := []rune(tok)
		// A 4-rune prefix feature makes inflected forms overlap strongly
		// (mammal vs mammals); trigrams add partial-word overlap.
		if len(runes) > 4 {
			addFeature(vec, "^"+string(runes[:4]), 1.0)
		}
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vec, string(runes[i:i+3]), 0.5)
		}
	}

	return Normalize(vec), nil
}

// addFeature hashes the feature into a bucket with a hash-derived sign, so
// unrelated features cancel instead of accumulating into a dense bias.
func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize lowercases and splits on anything that is not a letter or digit.
// CJK runs are emitted per rune so ideographic text still produces features.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder

	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}
