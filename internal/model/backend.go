// Package model routes generation requests across multiple backends.
//
// Each backend carries a priority, a sliding-window rate limit and an
// availability state; the orchestrator selects the best eligible backend
// per request and fails over once on error. Backends disabled by repeated
// failures are re-enabled by an explicit reset or after five idle minutes.
package model

import (
	"context"
	"time"
)

// GenerateRequest is a single generation call.
type GenerateRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int

	// PreferredModel names a backend to try first when it is available
	// and under its rate limit. Empty means priority order.
	PreferredModel string
}

// GenerateResult is the outcome of a successful generation.
type GenerateResult struct {
	Text       string
	ModelUsed  string
	TokensUsed int
	Latency    time.Duration
}

// Completion is a backend's raw answer.
type Completion struct {
	Text       string
	TokensUsed int
}

// StreamChunk is one fragment of a streamed generation. Err is non-nil on
// the terminal chunk of a failed stream.
type StreamChunk struct {
	Text string
	Err  error
}

// Backend is a single generation service. Implementations must be safe
// for concurrent use; the orchestrator owns all counters and rate
// accounting.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (Completion, error)

	// Stream begins a streamed generation. The returned channel is closed
	// after the final chunk. Consumers may abandon the channel at any
	// time; implementations must unblock via ctx.
	Stream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error)
}

// RateLimit is a per-backend sliding-window budget. Zero values mean
// unlimited.
type RateLimit struct {
	RequestsPerMinute int
	TokensPerMinute   int
}

// Descriptor is the static configuration of one backend.
type Descriptor struct {
	Name         string
	Priority     int // lower is preferred
	MaxTokens    int
	CostPerToken float64
	RateLimit    RateLimit
}
