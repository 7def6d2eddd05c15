package knowledge

import (
	"context"
	"strings"
	"testing"
)

func TestDiscoverClusters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two tight groups plus an isolated node.
	group1 := []string{
		"the roman empire controlled the mediterranean for centuries",
		"the roman empire dominated the mediterranean for centuries",
		"the roman empire ruled the mediterranean region for centuries",
	}
	group2 := []string{
		"neural networks learn representations from training data",
		"neural networks learn useful representations from training data",
	}
	for _, c := range group1 {
		if _, err := s.Add(ctx, c, WithTags("history")); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	for _, c := range group2 {
		if _, err := s.Add(ctx, c, WithTags("ml")); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := s.Add(ctx, "sourdough starter needs regular feeding"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clusters := s.DiscoverClusters(2)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2: %+v", len(clusters), clusters)
	}

	for _, c := range clusters {
		if len(c.Members) < 2 {
			t.Errorf("cluster %s has %d members, want >= 2", c.ID, len(c.Members))
		}
		if c.Coherence <= 0 || c.Coherence > 1 {
			t.Errorf("cluster %s coherence = %v, want (0, 1]", c.ID, c.Coherence)
		}
		if c.Domain != "history" && c.Domain != "ml" {
			t.Errorf("cluster %s domain = %q", c.ID, c.Domain)
		}
	}

	// minSize 1 also survives singletons, with coherence pinned to 1.
	all := s.DiscoverClusters(1)
	if len(all) != 3 {
		t.Fatalf("got %d components, want 3", len(all))
	}
	for _, c := range all {
		if len(c.Members) == 1 && c.Coherence != 1 {
			t.Errorf("singleton coherence = %v, want 1", c.Coherence)
		}
	}
}

func TestSynthesize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	concept, _ := s.Add(ctx, "spaced repetition", WithKind(KindConcept))
	theory, _ := s.Add(ctx, "forgetting follows an exponential decay curve", WithKind(KindTheory))
	app, _ := s.Add(ctx, "review flashcards at expanding intervals", WithKind(KindApplication))
	_ = s.Connect(ctx, concept.ID, app.ID)

	digest := s.Synthesize([]string{concept.ID, theory.ID, app.ID})

	for _, want := range []string{
		"## Concepts", "## Theories", "## Applications", "## Cross-references",
		"spaced repetition",
	} {
		if !strings.Contains(digest, want) {
			t.Errorf("digest missing %q:\n%s", want, digest)
		}
	}
	if strings.Contains(digest, "## Facts") {
		t.Errorf("empty section rendered:\n%s", digest)
	}

	if got := s.Synthesize([]string{"no-such-id"}); got != "" {
		t.Errorf("unknown ids should yield empty digest, got %q", got)
	}
}
