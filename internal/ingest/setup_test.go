package ingest

import (
	"context"
	"testing"

	"github.com/lumenreads/lumen/internal/embedding"
	"github.com/lumenreads/lumen/internal/knowledge"
	"github.com/lumenreads/lumen/internal/log"
)

// newRealStore builds an in-memory knowledge store for pipeline tests that
// need real embedding and auto-connect behavior.
func newRealStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := knowledge.NewStore(context.Background(),
		embedding.NewDeterministic(), knowledge.NewMemoryKV(),
		knowledge.WithLogger(log.NewNop()))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}
