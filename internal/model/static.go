package model

import (
	"context"
	"strings"
	"unicode/utf8"
)

// LastResortName is the name of the built-in fallback backend used when no
// configured backend qualifies.
const LastResortName = "last-resort"

// lastResortReply is returned by the built-in fallback. It is honest about
// its nature so callers never mistake it for a model answer.
const lastResortReply = "No generation backend is currently available. " +
	"This is a degraded placeholder response; please retry shortly."

// StaticBackend returns a fixed transformation of the prompt. It backs the
// built-in last resort and test doubles.
type StaticBackend struct {
	name  string
	reply func(prompt string) string
}

// NewStaticBackend creates a backend that answers with reply(prompt).
func NewStaticBackend(name string, reply func(prompt string) string) *StaticBackend {
	return &StaticBackend{name: name, reply: reply}
}

// NewLastResort returns the hard-coded fallback backend.
func NewLastResort() *StaticBackend {
	return NewStaticBackend(LastResortName, func(string) string {
		return lastResortReply
	})
}

// Name returns the backend name.
func (b *StaticBackend) Name() string { return b.name }

// Generate returns the canned reply with a rough token estimate.
func (b *StaticBackend) Generate(_ context.Context, req GenerateRequest) (Completion, error) {
	text := b.reply(req.Prompt)
	return Completion{Text: text, TokensUsed: estimateTokens(text)}, nil
}

// Stream yields the reply in word-sized fragments.
func (b *StaticBackend) Stream(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	text := b.reply(req.Prompt)
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(text, " ") {
			select {
			case out <- StreamChunk{Text: word}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// estimateTokens approximates token usage for backends that do not report
// it. Four characters per token is the usual rule of thumb.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)/4 + 1
	return n
}
