package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/lumenreads/lumen/internal/embedding"
	"github.com/lumenreads/lumen/internal/knowledge"
	"github.com/lumenreads/lumen/internal/model"
)

// mockRetriever returns canned results and records the last query.
type mockRetriever struct {
	results   []knowledge.Result
	err       error
	lastQuery string
}

func (m *mockRetriever) Search(_ context.Context, query string, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	m.lastQuery = query
	return m.results, m.err
}

// mockGenerator returns a canned completion and counts invocations.
type mockGenerator struct {
	text  string
	err   error
	calls int
}

func (m *mockGenerator) Generate(_ context.Context, _ model.GenerateRequest) (*model.GenerateResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &model.GenerateResult{Text: m.text, ModelUsed: "mock"}, nil
}

func result(content string, relevance float64) knowledge.Result {
	return knowledge.Result{
		Node:      knowledge.Node{ID: content, Content: content},
		Relevance: relevance,
	}
}

func TestQueryNoEvidenceSkipsGeneration(t *testing.T) {
	gen := &mockGenerator{text: "should not be called"}
	e := NewEngine(&mockRetriever{}, gen)

	ans, err := e.Query(context.Background(), "completely unrelated nonsense query")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.Text != NoEvidenceAnswer {
		t.Errorf("Text = %q, want NoEvidenceAnswer", ans.Text)
	}
	if ans.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", ans.Confidence)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestQueryEmptyQuestion(t *testing.T) {
	e := NewEngine(&mockRetriever{}, &mockGenerator{})
	if _, err := e.Query(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestQueryConfidence(t *testing.T) {
	ret := &mockRetriever{results: []knowledge.Result{
		result("a", 0.8),
		result("b", 0.6),
	}}
	answer := strings.Repeat("x", 250)
	e := NewEngine(ret, &mockGenerator{text: answer})

	ans, err := e.Query(context.Background(), "question", WithRetrievalCount(5))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.RetrievedCount != 2 {
		t.Errorf("RetrievedCount = %d, want 2", ans.RetrievedCount)
	}

	// 0.5*avg(0.8,0.6) + 0.3*(2/5) + 0.2*(250/500)
	want := 0.5*0.7 + 0.3*0.4 + 0.2*0.5
	if math.Abs(ans.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", ans.Confidence, want)
	}
}

func TestQueryGeneratorFailurePropagates(t *testing.T) {
	ret := &mockRetriever{results: []knowledge.Result{result("a", 0.9)}}
	genErr := errors.New("backend down")
	e := NewEngine(ret, &mockGenerator{err: genErr})

	if _, err := e.Query(context.Background(), "question"); !errors.Is(err, genErr) {
		t.Fatalf("err = %v, want wrapped backend error", err)
	}
}

func TestQueryPromptCitesEvidence(t *testing.T) {
	sources := []knowledge.Result{result("water boils at 100C", 0.92)}
	prompt := buildAnswerPrompt("at what temperature does water boil?", sources)

	for _, want := range []string{"[1]", "92%", "water boils at 100C", "ONLY"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestConversationalQueryExtendsRetrieval(t *testing.T) {
	ret := &mockRetriever{results: []knowledge.Result{result("a", 0.9)}}
	e := NewEngine(ret, &mockGenerator{text: "answer"})

	history := []Turn{{Question: "tell me about whales", Answer: "whales are mammals"}}
	if _, err := e.ConversationalQuery(context.Background(), "how big are they?", history); err != nil {
		t.Fatalf("ConversationalQuery: %v", err)
	}
	if !strings.Contains(ret.lastQuery, "whales") {
		t.Errorf("retrieval query %q does not include history", ret.lastQuery)
	}
	if !strings.Contains(ret.lastQuery, "how big are they?") {
		t.Errorf("retrieval query %q does not include the question", ret.lastQuery)
	}
}

func TestSummarizeTruncates(t *testing.T) {
	ret := &mockRetriever{results: []knowledge.Result{result("a", 0.9)}}
	e := NewEngine(ret, &mockGenerator{text: strings.Repeat("s", 300)})

	summary, err := e.Summarize(context.Background(), "topic", 100)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summary) != 100 {
		t.Errorf("summary length = %d, want 100", len(summary))
	}
}

func TestFactCheckRefutedAgainstStore(t *testing.T) {
	ctx := context.Background()
	store, err := knowledge.NewStore(ctx, embedding.NewDeterministic(), knowledge.NewMemoryKV())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Add(ctx, "the sky appears blue due to Rayleigh scattering"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	gen := &mockGenerator{
		text: `{"verdict": "REFUTED", "confidence": 0.9, "reasoning": "evidence says the sky is blue"}`,
	}
	e := NewEngine(store, gen)

	res, err := e.FactCheck(ctx, "The sky is green")
	if err != nil {
		t.Fatalf("FactCheck: %v", err)
	}
	if res.Verdict != VerdictRefuted {
		t.Errorf("Verdict = %q, want REFUTED", res.Verdict)
	}
	if res.Confidence <= 0 {
		t.Errorf("Confidence = %v, want > 0", res.Confidence)
	}
	if len(res.Evidence) == 0 {
		t.Error("no evidence attached to verdict")
	}
}

func TestFactCheckNoEvidence(t *testing.T) {
	gen := &mockGenerator{text: "unused"}
	e := NewEngine(&mockRetriever{}, gen)

	res, err := e.FactCheck(context.Background(), "anything")
	if err != nil {
		t.Fatalf("FactCheck: %v", err)
	}
	if res.Verdict != VerdictNotEnoughInfo || res.Confidence != 0 {
		t.Errorf("result = %+v, want NOT_ENOUGH_INFO with confidence 0", res)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestFactCheckUnparseableOutput(t *testing.T) {
	ret := &mockRetriever{results: []knowledge.Result{result("a", 0.9)}}
	e := NewEngine(ret, &mockGenerator{text: "I think the claim is probably wrong."})

	res, err := e.FactCheck(context.Background(), "claim")
	if err != nil {
		t.Fatalf("FactCheck: %v", err)
	}
	if res.Verdict != VerdictNotEnoughInfo || res.Confidence != 0 {
		t.Errorf("result = %+v, want NOT_ENOUGH_INFO with confidence 0", res)
	}
	if res.RawOutput == "" {
		t.Error("RawOutput not preserved for diagnostics")
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		parsed     bool
		verdict    Verdict
		confidence float64
	}{
		{
			name:       "plain json",
			text:       `{"verdict": "SUPPORTED", "confidence": 0.8, "reasoning": "ok"}`,
			parsed:     true,
			verdict:    VerdictSupported,
			confidence: 0.8,
		},
		{
			name:       "fenced json",
			text:       "```json\n{\"verdict\": \"refuted\", \"confidence\": 0.7}\n```",
			parsed:     true,
			verdict:    VerdictRefuted,
			confidence: 0.7,
		},
		{
			name:       "confidence clamped",
			text:       `{"verdict": "SUPPORTED", "confidence": 1.4}`,
			parsed:     true,
			verdict:    VerdictSupported,
			confidence: 1,
		},
		{
			name:   "unknown verdict",
			text:   `{"verdict": "MAYBE", "confidence": 0.5}`,
			parsed: false,
		},
		{
			name:   "prose only",
			text:   "the claim seems fine",
			parsed: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseVerdict(tt.text)
			if got.parsed != tt.parsed {
				t.Fatalf("parsed = %v, want %v", got.parsed, tt.parsed)
			}
			if !tt.parsed {
				return
			}
			if got.verdict != tt.verdict {
				t.Errorf("verdict = %q, want %q", got.verdict, tt.verdict)
			}
			if got.confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", got.confidence, tt.confidence)
			}
		})
	}
}
