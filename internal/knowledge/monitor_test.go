package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/lumenreads/lumen/internal/embedding"
	"github.com/lumenreads/lumen/internal/log"
)

// fakeCloudTier records offloaded nodes in memory.
type fakeCloudTier struct {
	mu     sync.Mutex
	nodes  map[string]Node
	failOn map[string]struct{}
}

func newFakeCloudTier() *fakeCloudTier {
	return &fakeCloudTier{nodes: make(map[string]Node), failOn: make(map[string]struct{})}
}

func (f *fakeCloudTier) Put(_ context.Context, node Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, fail := f.failOn[node.ID]; fail {
		return errors.New("simulated upload failure")
	}
	f.nodes[node.ID] = node
	return nil
}

func (f *fakeCloudTier) Get(_ context.Context, id string) (Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	return n, nil
}

func (f *fakeCloudTier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nodes)
}

func TestSweepOffloadsLRUNodes(t *testing.T) {
	ctx := context.Background()
	cloud := newFakeCloudTier()
	kv := NewMemoryKV()
	s, err := NewStore(ctx, embedding.NewDeterministic(), kv,
		WithLogger(log.NewNop()), WithCloudTier(cloud))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	contents := []string{
		"chapter one introduces the protagonist",
		"chapter two develops the central conflict",
		"chapter three resolves the mystery",
		"chapter four sets up the sequel",
	}
	var ids []string
	for _, c := range contents {
		n, err := s.Add(ctx, c)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		ids = append(ids, n.ID)
	}

	// Touch the last two so the first two are the LRU candidates.
	time.Sleep(2 * time.Millisecond)
	_, _ = s.Get(ctx, ids[2])
	_, _ = s.Get(ctx, ids[3])

	usage, err := s.LocalUsage(ctx)
	if err != nil {
		t.Fatalf("LocalUsage: %v", err)
	}
	// A quota just below current usage trips the high-water check.
	quota := usage - 1

	m := NewCapacityMonitor(s, quota, time.Minute, log.NewNop())
	m.Sweep(ctx)

	after, err := s.LocalUsage(ctx)
	if err != nil {
		t.Fatalf("LocalUsage: %v", err)
	}
	if after > int64(lowWater*float64(quota)) {
		t.Errorf("usage %d still above low water %v", after, lowWater*float64(quota))
	}
	if cloud.len() == 0 {
		t.Fatal("no nodes reached the cloud tier")
	}

	// The most recently accessed node should be the last to go.
	for _, id := range s.OffloadCandidates() {
		if id == ids[0] || id == ids[1] {
			t.Errorf("LRU node %s was skipped while newer nodes offloaded", id)
		}
	}

	// Offloaded nodes stay readable and keep their content.
	first, err := s.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get offloaded node: %v", err)
	}
	if first.Content != contents[0] {
		t.Errorf("content lost on offload: %q", first.Content)
	}
}

func TestSweepEvictsReadThroughCachedNodes(t *testing.T) {
	ctx := context.Background()
	cloud := newFakeCloudTier()
	s, err := NewStore(ctx, embedding.NewDeterministic(), NewMemoryKV(),
		WithLogger(log.NewNop()), WithCloudTier(cloud))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	n, err := s.Add(ctx, "a fact that keeps getting looked up")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Offload(ctx, n.ID); err != nil {
		t.Fatalf("Offload: %v", err)
	}

	// Reading the offloaded node caches it locally again.
	got, err := s.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Tier != TierBoth {
		t.Fatalf("Tier = %q after read-through, want %q", got.Tier, TierBoth)
	}

	found := false
	for _, id := range s.OffloadCandidates() {
		if id == n.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("cached copy never becomes an offload candidate")
	}

	// A tight quota must be able to reclaim the cached copy.
	before, err := s.LocalUsage(ctx)
	if err != nil {
		t.Fatalf("LocalUsage: %v", err)
	}
	m := NewCapacityMonitor(s, before-1, time.Minute, log.NewNop())
	m.Sweep(ctx)

	after, err := s.LocalUsage(ctx)
	if err != nil {
		t.Fatalf("LocalUsage: %v", err)
	}
	if after >= before {
		t.Errorf("usage %d did not drop below %d", after, before)
	}
	if ids := s.OffloadCandidates(); len(ids) != 0 {
		t.Errorf("cached copy survived the sweep: %v", ids)
	}
}

func TestSweepSkipsFailedOffloads(t *testing.T) {
	ctx := context.Background()
	cloud := newFakeCloudTier()
	kv := NewMemoryKV()
	s, err := NewStore(ctx, embedding.NewDeterministic(), kv,
		WithLogger(log.NewNop()), WithCloudTier(cloud))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	a, _ := s.Add(ctx, "first entry in the cache")
	b, _ := s.Add(ctx, "second entry in the cache")
	cloud.failOn[a.ID] = struct{}{}

	usage, _ := s.LocalUsage(ctx)
	m := NewCapacityMonitor(s, usage-1, time.Minute, log.NewNop())
	m.Sweep(ctx)

	// The failing node is skipped, the sweep continues to the next.
	if _, err := cloud.Get(ctx, b.ID); err != nil {
		t.Errorf("sweep did not continue past failed node: %v", err)
	}
	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Tier == TierCloud {
		t.Error("failed offload still changed the node tier")
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	s, err := NewStore(ctx, embedding.NewDeterministic(), NewMemoryKV(),
		WithLogger(log.NewNop()))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	m := NewCapacityMonitor(s, 1<<20, 5*time.Millisecond, log.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(runCtx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
