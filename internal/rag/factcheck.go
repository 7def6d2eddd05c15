package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lumenreads/lumen/internal/knowledge"
	"github.com/lumenreads/lumen/internal/model"
)

// Verdict classifies a claim against retrieved evidence.
type Verdict string

const (
	VerdictSupported     Verdict = "SUPPORTED"
	VerdictRefuted       Verdict = "REFUTED"
	VerdictNotEnoughInfo Verdict = "NOT_ENOUGH_INFO"
)

// FactCheckResult is the outcome of a FactCheck call. When the model
// output could not be parsed, Verdict is VerdictNotEnoughInfo, Confidence
// is 0 and RawOutput carries the unparsed text.
type FactCheckResult struct {
	Verdict    Verdict
	Confidence float64
	Reasoning  string
	Evidence   []knowledge.Result
	RawOutput  string
}

// verdictParse is the tagged outcome of parsing model output: either a
// structured verdict or the raw text fallback, never a silent guess.
type verdictParse struct {
	parsed     bool
	verdict    Verdict
	confidence float64
	reasoning  string
	raw        string
}

// FactCheck judges the claim strictly from retrieved evidence.
func (e *Engine) FactCheck(ctx context.Context, claim string) (FactCheckResult, error) {
	if strings.TrimSpace(claim) == "" {
		return FactCheckResult{}, ErrEmptyQuestion
	}

	evidence, err := e.retriever.Search(ctx, claim,
		knowledge.WithLimit(factCheckRetrievalCount),
		knowledge.WithMinRelevance(DefaultMinRelevance),
	)
	if err != nil {
		return FactCheckResult{}, fmt.Errorf("retrieve evidence: %w", err)
	}
	if len(evidence) == 0 {
		return FactCheckResult{Verdict: VerdictNotEnoughInfo}, nil
	}

	res, err := e.generator.Generate(ctx, model.GenerateRequest{
		Prompt:      buildFactCheckPrompt(claim, evidence),
		Temperature: queryTemperature,
	})
	if err != nil {
		return FactCheckResult{}, fmt.Errorf("generate verdict: %w", err)
	}

	parse := parseVerdict(res.Text)
	if !parse.parsed {
		e.logger.Warn("unparseable fact-check output",
			slog.String("claim", claim), slog.String("output", parse.raw))
		return FactCheckResult{
			Verdict:   VerdictNotEnoughInfo,
			Evidence:  evidence,
			RawOutput: parse.raw,
		}, nil
	}
	return FactCheckResult{
		Verdict:    parse.verdict,
		Confidence: parse.confidence,
		Reasoning:  parse.reasoning,
		Evidence:   evidence,
	}, nil
}

func buildFactCheckPrompt(claim string, evidence []knowledge.Result) string {
	var b strings.Builder
	b.WriteString("Judge the claim strictly from the evidence below. ")
	b.WriteString(`Respond with JSON only: {"verdict": "SUPPORTED" | "REFUTED" | "NOT_ENOUGH_INFO", "confidence": 0.0-1.0, "reasoning": "..."}`)
	b.WriteString("\n\nEvidence:\n")
	for i, ev := range evidence {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, ev.Node.Content)
	}
	b.WriteString("\nClaim: ")
	b.WriteString(claim)
	return b.String()
}

// parseVerdict extracts the structured verdict from model output. Models
// often wrap JSON in prose or code fences, so the outermost braces are
// tried when the whole text does not unmarshal.
func parseVerdict(text string) verdictParse {
	var payload struct {
		Verdict    string  `json:"verdict"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}

	candidate := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start < 0 || end <= start {
			return verdictParse{raw: text}
		}
		if err := json.Unmarshal([]byte(candidate[start:end+1]), &payload); err != nil {
			return verdictParse{raw: text}
		}
	}

	verdict := Verdict(strings.ToUpper(strings.TrimSpace(payload.Verdict)))
	switch verdict {
	case VerdictSupported, VerdictRefuted, VerdictNotEnoughInfo:
	default:
		return verdictParse{raw: text}
	}

	conf := payload.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return verdictParse{
		parsed:     true,
		verdict:    verdict,
		confidence: conf,
		reasoning:  payload.Reasoning,
	}
}
