// Package rag answers questions from retrieved evidence. The engine
// searches the knowledge store, builds a prompt that constrains the model
// to the retrieved passages, and scores its own confidence in the result.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lumenreads/lumen/internal/knowledge"
	"github.com/lumenreads/lumen/internal/log"
	"github.com/lumenreads/lumen/internal/model"
)

// Defaults for retrieval and generation.
const (
	DefaultRetrievalCount = 5
	DefaultMinRelevance   = 0.3

	factCheckRetrievalCount = 10
	summarizeRetrievalCount = 10

	queryTemperature = 0.2

	// Confidence weights: evidence quality, evidence coverage and answer
	// substance. answerLengthScale is the answer length treated as fully
	// substantive.
	relevanceWeight   = 0.5
	coverageWeight    = 0.3
	lengthWeight      = 0.2
	answerLengthScale = 500
)

// NoEvidenceAnswer is returned verbatim when retrieval finds nothing.
const NoEvidenceAnswer = "I don't have enough information in my knowledge base to answer this question."

// ErrEmptyQuestion rejects blank input before any retrieval happens.
var ErrEmptyQuestion = errors.New("rag: empty question")

// Retriever is the slice of the knowledge store the engine needs.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Generator is the slice of the model orchestrator the engine needs.
type Generator interface {
	Generate(ctx context.Context, req model.GenerateRequest) (*model.GenerateResult, error)
}

// Answer is the outcome of a Query.
type Answer struct {
	Text           string
	Sources        []knowledge.Result
	Confidence     float64
	RetrievedCount int
	ModelUsed      string
}

// Turn is one prior exchange in a conversation.
type Turn struct {
	Question string
	Answer   string
}

// Engine wires retrieval to generation.
type Engine struct {
	retriever Retriever
	generator Generator
	logger    log.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(l log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine over the given store and orchestrator
// slices.
func NewEngine(retriever Retriever, generator Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		retriever: retriever,
		generator: generator,
		logger:    log.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// QueryOption configures a single Query call.
type QueryOption func(*queryConfig)

type queryConfig struct {
	retrievalCount int
	minRelevance   float64
}

// WithRetrievalCount sets how many passages to retrieve.
func WithRetrievalCount(n int) QueryOption {
	return func(c *queryConfig) {
		if n > 0 {
			c.retrievalCount = n
		}
	}
}

// WithMinRelevance sets the retrieval relevance floor.
func WithMinRelevance(min float64) QueryOption {
	return func(c *queryConfig) { c.minRelevance = min }
}

func newQueryConfig(opts []QueryOption) queryConfig {
	cfg := queryConfig{
		retrievalCount: DefaultRetrievalCount,
		minRelevance:   DefaultMinRelevance,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Query answers the question from retrieved evidence only. When nothing
// relevant is found it short-circuits with NoEvidenceAnswer and
// confidence 0, without calling the generator.
func (e *Engine) Query(ctx context.Context, question string, opts ...QueryOption) (Answer, error) {
	return e.query(ctx, question, question, opts)
}

// ConversationalQuery is Query with prior turns folded into both the
// retrieval query and the prompt, so follow-up questions retrieve in
// context.
func (e *Engine) ConversationalQuery(ctx context.Context, question string, history []Turn, opts ...QueryOption) (Answer, error) {
	if len(history) == 0 {
		return e.Query(ctx, question, opts...)
	}

	var b strings.Builder
	for _, t := range history {
		b.WriteString(t.Question)
		b.WriteString("\n")
		b.WriteString(t.Answer)
		b.WriteString("\n")
	}
	b.WriteString(question)

	prompt := question + "\n\nPrior conversation:\n" + renderHistory(history)
	return e.query(ctx, b.String(), prompt, opts)
}

func renderHistory(history []Turn) string {
	var b strings.Builder
	for i, t := range history {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, t.Question, i+1, t.Answer)
	}
	return b.String()
}

// query retrieves with retrievalQuery and prompts with promptQuestion.
func (e *Engine) query(ctx context.Context, retrievalQuery, promptQuestion string, opts []QueryOption) (Answer, error) {
	if strings.TrimSpace(retrievalQuery) == "" {
		return Answer{}, ErrEmptyQuestion
	}
	cfg := newQueryConfig(opts)

	sources, err := e.retriever.Search(ctx, retrievalQuery,
		knowledge.WithLimit(cfg.retrievalCount),
		knowledge.WithMinRelevance(cfg.minRelevance),
	)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve evidence: %w", err)
	}
	if len(sources) == 0 {
		e.logger.Debug("no evidence retrieved", slog.String("query", retrievalQuery))
		return Answer{Text: NoEvidenceAnswer}, nil
	}

	res, err := e.generator.Generate(ctx, model.GenerateRequest{
		Prompt:      buildAnswerPrompt(promptQuestion, sources),
		Temperature: queryTemperature,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	return Answer{
		Text:           res.Text,
		Sources:        sources,
		Confidence:     confidence(sources, cfg.retrievalCount, res.Text),
		RetrievedCount: len(sources),
		ModelUsed:      res.ModelUsed,
	}, nil
}

// buildAnswerPrompt enumerates the evidence with relevance percentages
// and instructs the model to answer only from it.
func buildAnswerPrompt(question string, sources []knowledge.Result) string {
	var b strings.Builder
	b.WriteString("Answer the question using ONLY the evidence passages below. ")
	b.WriteString("Cite passage numbers like [1]. ")
	b.WriteString("If the evidence is insufficient, say so explicitly.\n\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] (relevance %.0f%%) %s\n", i+1, src.Relevance*100, src.Node.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// confidence combines average retrieval relevance, retrieval coverage
// against the requested count, and answer substance.
func confidence(sources []knowledge.Result, requested int, answer string) float64 {
	var sum float64
	for _, src := range sources {
		sum += src.Relevance
	}
	avgRelevance := sum / float64(len(sources))

	coverage := float64(len(sources)) / float64(requested)
	if coverage > 1 {
		coverage = 1
	}
	substance := float64(len(answer)) / answerLengthScale
	if substance > 1 {
		substance = 1
	}
	return relevanceWeight*avgRelevance + coverageWeight*coverage + lengthWeight*substance
}

// Summarize retrieves material on the topic and condenses it into at most
// maxLength characters.
func (e *Engine) Summarize(ctx context.Context, topic string, maxLength int) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", ErrEmptyQuestion
	}
	if maxLength <= 0 {
		maxLength = answerLengthScale
	}

	sources, err := e.retriever.Search(ctx, topic,
		knowledge.WithLimit(summarizeRetrievalCount),
		knowledge.WithMinRelevance(DefaultMinRelevance),
	)
	if err != nil {
		return "", fmt.Errorf("retrieve material: %w", err)
	}
	if len(sources) == 0 {
		return NoEvidenceAnswer, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following material about %q in at most %d characters:\n\n", topic, maxLength)
	for _, src := range sources {
		b.WriteString("- ")
		b.WriteString(src.Node.Content)
		b.WriteString("\n")
	}

	res, err := e.generator.Generate(ctx, model.GenerateRequest{
		Prompt:      b.String(),
		Temperature: queryTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	summary := res.Text
	if runes := []rune(summary); len(runes) > maxLength {
		summary = string(runes[:maxLength])
	}
	return summary, nil
}
