// Package embedding defines the text embedding contract used by the
// knowledge store and provides two implementations: a deterministic,
// dependency-free projection for local-first operation and tests, and a
// Gemini-backed embedder for real semantic similarity.
//
// All implementations return L2-normalized vectors of a fixed dimension so
// that cosine similarity reduces to a dot product.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Dimension is the vector length shared by every embedder in a store
// instance. The cloud tier schema and the deterministic projection are both
// pinned to it.
const Dimension = 384

// ErrEmptyText is returned when the input has no embeddable content.
var ErrEmptyText = errors.New("embedding: empty text")

// Embedder converts text into a fixed-length normalized vector.
//
// Implementations must be deterministic for identical input and safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Normalize scales v to unit L2 norm in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Cosine returns the similarity of two normalized vectors, clipped to
// [0, 1]. Vectors of mismatched length score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}
