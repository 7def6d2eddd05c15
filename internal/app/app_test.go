package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lumenreads/lumen/internal/config"
	"github.com/lumenreads/lumen/internal/ingest"
	"github.com/lumenreads/lumen/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		StorePath:         filepath.Join(t.TempDir(), "knowledge.db"),
		LocalQuota:        config.DefaultLocalQuota,
		SweepIntervalSecs: 60,
		Embedder:          config.EmbedderDeterministic,
		Backends: []config.BackendConfig{
			{Name: "stub", Model: "stub-model", Priority: 1},
		},
	}
}

// stubFactory wires canned backends so no Gemini client is needed.
func stubFactory(b config.BackendConfig) (model.Backend, error) {
	return model.NewStaticBackend(b.Name, func(prompt string) string {
		return "stub answer"
	}), nil
}

func TestNewRuntimeWiresComponents(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(ctx, testConfig(t), WithBackendFactory(stubFactory))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()
	rt.Start(ctx)

	doc, err := rt.Pipeline.AddDocument(ctx,
		"The mitochondria is the powerhouse of the cell. It produces energy.",
		ingest.WithTags("biology"))
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if len(doc.Chunks) == 0 {
		t.Fatal("document produced no chunks")
	}
	if rt.Store.Count() == 0 {
		t.Fatal("store empty after ingestion")
	}

	page, err := rt.Search.Search(ctx, "mitochondria energy")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.TotalResults == 0 {
		t.Error("aggregator found nothing through the local source")
	}

	statuses := rt.Orchestrator.GetStatus()
	if len(statuses) != 2 {
		t.Errorf("got %d backends, want configured stub plus last resort", len(statuses))
	}
}

// A configured backend must be invocable on valid input, end to end
// through retrieval and generation.
func TestRuntimeGeneratesThroughConfiguredBackend(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(ctx, testConfig(t), WithBackendFactory(stubFactory))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer func() { _ = rt.Close() }()

	if _, err := rt.Pipeline.AddDocument(ctx,
		"The mitochondria is the powerhouse of the cell."); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	ans, err := rt.Engine.Query(ctx, "what is the mitochondria?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.Text != "stub answer" {
		t.Errorf("Text = %q, want the wired backend's answer", ans.Text)
	}
	if ans.ModelUsed != "stub" {
		t.Errorf("ModelUsed = %q, want stub", ans.ModelUsed)
	}
}

func TestNewRuntimeRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backends = []config.BackendConfig{{Name: "stub", Priority: 1}}

	if _, err := NewRuntime(context.Background(), cfg, WithBackendFactory(stubFactory)); err == nil {
		t.Fatal("expected validation error for a backend without a model")
	}
}
