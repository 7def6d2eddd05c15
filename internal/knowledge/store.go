package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenreads/lumen/internal/embedding"
)

// Auto-connect parameters: every added node is linked to its closest
// existing neighbors above the similarity threshold.
const (
	autoConnectLimit     = 5
	autoConnectThreshold = 0.7
)

// Defaults applied when the caller does not specify them.
const (
	DefaultImportance   = 0.5
	DefaultCredibility  = 0.8
	DefaultSearchLimit  = 20
	DefaultMinRelevance = 0.3
)

const nodeKeyPrefix = "node/"

var (
	// ErrEmptyContent is returned when content or a query has no text.
	ErrEmptyContent = errors.New("knowledge: empty content")

	// ErrNodeNotFound is returned when a referenced node does not exist.
	ErrNodeNotFound = errors.New("knowledge: node not found")

	// ErrInvalidMetadata is returned when node metadata fails validation.
	ErrInvalidMetadata = errors.New("knowledge: invalid metadata")
)

// CloudTier receives offloaded node records. Implementations must be safe
// for concurrent use.
type CloudTier interface {
	Put(ctx context.Context, node Node) error
	Get(ctx context.Context, id string) (Node, error)
}

// Store owns the node graph. The in-memory arena is authoritative;
// the KV substrate is a best-effort local cache, and the optional cloud
// tier holds offloaded records.
type Store struct {
	embedder embedding.Embedder
	kv       KV
	cloud    CloudTier
	logger   *slog.Logger

	mu     sync.RWMutex
	nodes  map[string]*Node
	adj    map[string]map[string]struct{}
	byKind map[Kind]map[string]struct{}
	byTag  map[string]map[string]struct{}
	order  []string // insertion order, breaks score ties deterministically
}

// StoreOption configures a Store at construction.
type StoreOption func(*Store)

// WithLogger sets the store logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithCloudTier attaches a cloud tier for offloaded nodes.
func WithCloudTier(cloud CloudTier) StoreOption {
	return func(s *Store) { s.cloud = cloud }
}

// NewStore creates a Store over the given embedder and substrate, loading
// any records the substrate already holds.
func NewStore(ctx context.Context, embedder embedding.Embedder, kv KV, opts ...StoreOption) (*Store, error) {
	s := &Store{
		embedder: embedder,
		kv:       kv,
		nodes:    make(map[string]*Node),
		adj:      make(map[string]map[string]struct{}),
		byKind:   make(map[Kind]map[string]struct{}),
		byTag:    make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("load persisted nodes: %w", err)
	}
	return s, nil
}

// load rebuilds the arena and indexes from the substrate.
func (s *Store) load(ctx context.Context) error {
	keys, err := s.kv.List(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	var loaded []*Node
	for _, key := range keys {
		if !strings.HasPrefix(key, nodeKeyPrefix) {
			continue
		}
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "key", key, "error", err)
			continue
		}
		var n Node
		if err := json.Unmarshal(raw, &n); err != nil {
			s.logger.Warn("skipping corrupt record", "key", key, "error", err)
			continue
		}
		if len(n.Embedding) != s.embedder.Dimension() {
			s.logger.Warn("skipping record with stale embedding dimension",
				"id", n.ID, "got", len(n.Embedding), "want", s.embedder.Dimension())
			continue
		}
		loaded = append(loaded, &n)
	}

	// Insertion order is recovered from creation time so score ties break
	// the same way across restarts.
	sort.Slice(loaded, func(i, j int) bool {
		if !loaded[i].CreatedAt.Equal(loaded[j].CreatedAt) {
			return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
		}
		return loaded[i].ID < loaded[j].ID
	})

	for _, n := range loaded {
		s.insertLocked(n)
	}
	for _, n := range loaded {
		for _, peer := range n.Connections {
			if _, ok := s.nodes[peer]; ok {
				s.connectLocked(n.ID, peer)
			}
		}
	}
	return nil
}

// AddOption sets optional node metadata on Add.
type AddOption func(*addConfig)

type addConfig struct {
	kind        Kind
	importance  float64
	credibility float64
	tags        []string
	sources     []string
}

// WithKind sets the node kind. Default: concept.
func WithKind(kind Kind) AddOption {
	return func(c *addConfig) { c.kind = kind }
}

// WithImportance sets importance in [0, 1]. Default: 0.5.
func WithImportance(v float64) AddOption {
	return func(c *addConfig) { c.importance = v }
}

// WithCredibility sets credibility in [0, 1]. Default: 0.8.
func WithCredibility(v float64) AddOption {
	return func(c *addConfig) { c.credibility = v }
}

// WithTags adds tags.
func WithTags(tags ...string) AddOption {
	return func(c *addConfig) { c.tags = append(c.tags, tags...) }
}

// WithSources adds provenance references.
func WithSources(sources ...string) AddOption {
	return func(c *addConfig) { c.sources = append(c.sources, sources...) }
}

// Add embeds content, persists a new local-tier node and auto-connects it
// to its nearest neighbors. Embedding or persistence failures abort the
// call with no partial state.
func (s *Store) Add(ctx context.Context, content string, opts ...AddOption) (Node, error) {
	if strings.TrimSpace(content) == "" {
		return Node{}, ErrEmptyContent
	}

	cfg := addConfig{
		kind:        KindConcept,
		importance:  DefaultImportance,
		credibility: DefaultCredibility,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.kind.Valid() {
		return Node{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidMetadata, cfg.kind)
	}
	if cfg.importance < 0 || cfg.importance > 1 {
		return Node{}, fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidMetadata, cfg.importance)
	}
	if cfg.credibility < 0 || cfg.credibility > 1 {
		return Node{}, fmt.Errorf("%w: credibility %v outside [0,1]", ErrInvalidMetadata, cfg.credibility)
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return Node{}, fmt.Errorf("embed content: %w", err)
	}

	now := time.Now().UTC()
	node := &Node{
		ID:             uuid.NewString(),
		Content:        content,
		Kind:           cfg.kind,
		Importance:     cfg.importance,
		Credibility:    cfg.credibility,
		Sources:        cfg.sources,
		Tags:           cfg.tags,
		Embedding:      vec,
		Tier:           TierLocal,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(ctx, node); err != nil {
		return Node{}, fmt.Errorf("persist node: %w", err)
	}
	s.insertLocked(node)

	// Auto-connect: symmetric edges to the closest existing neighbors.
	for _, peer := range s.neighborsLocked(node, autoConnectLimit, autoConnectThreshold) {
		s.connectLocked(node.ID, peer)
		// Re-persisting connection lists is best effort; the in-memory
		// graph stays correct either way.
		if err := s.persistLocked(ctx, s.nodes[peer]); err != nil {
			s.logger.Warn("persist neighbor connections", "id", peer, "error", err)
		}
	}
	if err := s.persistLocked(ctx, node); err != nil {
		s.logger.Warn("persist node connections", "id", node.ID, "error", err)
	}

	return s.snapshotLocked(node.ID), nil
}

// neighborsLocked returns up to limit node ids with similarity >= threshold
// against candidate, best first, ties broken by insertion order.
func (s *Store) neighborsLocked(candidate *Node, limit int, threshold float64) []string {
	type scored struct {
		id  string
		sim float64
	}
	var hits []scored
	for _, id := range s.order {
		if id == candidate.ID {
			continue
		}
		sim := embedding.Cosine(candidate.Embedding, s.nodes[id].Embedding)
		if sim >= threshold {
			hits = append(hits, scored{id: id, sim: sim})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids
}

// connectLocked inserts the symmetric edge a<->b. Inserting an existing
// edge is a no-op, so concurrent writers cannot produce asymmetry.
func (s *Store) connectLocked(a, b string) {
	if a == b {
		return
	}
	if s.adj[a] == nil {
		s.adj[a] = make(map[string]struct{})
	}
	if s.adj[b] == nil {
		s.adj[b] = make(map[string]struct{})
	}
	s.adj[a][b] = struct{}{}
	s.adj[b][a] = struct{}{}
}

// Connect adds a symmetric edge between two existing nodes.
func (s *Store) Connect(ctx context.Context, a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{a, b} {
		if _, ok := s.nodes[id]; !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
	}
	s.connectLocked(a, b)
	for _, id := range []string{a, b} {
		if err := s.persistLocked(ctx, s.nodes[id]); err != nil {
			s.logger.Warn("persist connections", "id", id, "error", err)
		}
	}
	return nil
}

func (s *Store) insertLocked(n *Node) {
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	if s.byKind[n.Kind] == nil {
		s.byKind[n.Kind] = make(map[string]struct{})
	}
	s.byKind[n.Kind][n.ID] = struct{}{}
	for _, tag := range n.Tags {
		if s.byTag[tag] == nil {
			s.byTag[tag] = make(map[string]struct{})
		}
		s.byTag[tag][n.ID] = struct{}{}
	}
}

// persistLocked writes the node's record, including its current
// connections, to the substrate. Nodes already offloaded keep their cloud
// record authoritative and are not re-cached here.
func (s *Store) persistLocked(ctx context.Context, n *Node) error {
	if n.Tier == TierCloud {
		return nil
	}
	snap := s.snapshotLocked(n.ID)
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal node %s: %w", n.ID, err)
	}
	return s.kv.Put(ctx, nodeKeyPrefix+n.ID, raw)
}

// snapshotLocked returns a caller-safe copy with sorted connections.
func (s *Store) snapshotLocked(id string) Node {
	n := *s.nodes[id]
	n.Embedding = append([]float32(nil), n.Embedding...)
	n.Tags = append([]string(nil), n.Tags...)
	n.Sources = append([]string(nil), n.Sources...)
	n.Connections = make([]string, 0, len(s.adj[id]))
	for peer := range s.adj[id] {
		n.Connections = append(n.Connections, peer)
	}
	sort.Strings(n.Connections)
	return n
}

// SearchOption configures Search.
type SearchOption func(*searchConfig)

type searchConfig struct {
	limit        int
	kind         Kind
	minRelevance float64
}

// WithLimit caps the number of results. Default: 20.
func WithLimit(limit int) SearchOption {
	return func(c *searchConfig) { c.limit = limit }
}

// WithKindFilter restricts results to one kind.
func WithKindFilter(kind Kind) SearchOption {
	return func(c *searchConfig) { c.kind = kind }
}

// WithMinRelevance sets the relevance floor. Default: 0.3.
func WithMinRelevance(min float64) SearchOption {
	return func(c *searchConfig) { c.minRelevance = min }
}

// Search embeds the query and returns nodes scored by cosine similarity,
// best first, ties broken by insertion order. Returned nodes have their
// access time stamped; cloud-tier hits are cached back as tier "both".
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyContent
	}
	cfg := searchConfig{limit: DefaultSearchLimit, minRelevance: DefaultMinRelevance}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.limit <= 0 {
		cfg.limit = DefaultSearchLimit
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		id  string
		sim float64
	}

	s.mu.RLock()
	hits := make([]scored, 0, len(s.order))
	for _, id := range s.order {
		n := s.nodes[id]
		if cfg.kind != "" && n.Kind != cfg.kind {
			continue
		}
		sim := embedding.Cosine(qvec, n.Embedding)
		if sim >= cfg.minRelevance {
			hits = append(hits, scored{id: id, sim: sim})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	if len(hits) > cfg.limit {
		hits = hits[:cfg.limit]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]Result, 0, len(hits))
	now := time.Now().UTC()
	for _, h := range hits {
		n, ok := s.nodes[h.id]
		if !ok {
			continue // deleted between phases
		}
		s.touchLocked(ctx, n, now)
		results = append(results, Result{Node: s.snapshotLocked(h.id), Relevance: h.sim})
	}
	return results, nil
}

// touchLocked stamps access time and applies the read-through cache
// effect: a cloud-only node gains a local cached copy (tier "both").
// This is the only cloud -> local movement the store performs.
func (s *Store) touchLocked(ctx context.Context, n *Node, now time.Time) {
	n.LastAccessedAt = now
	if n.Tier == TierCloud {
		n.Tier = TierBoth
		if err := s.persistLocked(ctx, n); err != nil {
			s.logger.Warn("cache offloaded node locally", "id", n.ID, "error", err)
		}
	}
}

// Get returns a node by id, stamping its access time.
func (s *Store) Get(ctx context.Context, id string) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	s.touchLocked(ctx, n, time.Now().UTC())
	return s.snapshotLocked(id), nil
}

// Delete removes a node and its edges. Deletion only ever happens on
// explicit request; offload never deletes.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	for peer := range s.adj[id] {
		delete(s.adj[peer], id)
	}
	delete(s.adj, id)
	delete(s.nodes, id)
	delete(s.byKind[n.Kind], id)
	for _, tag := range n.Tags {
		delete(s.byTag[tag], id)
	}
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if err := s.kv.Delete(ctx, nodeKeyPrefix+id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Count returns the number of nodes in the graph.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Dimension returns the embedding dimension enforced for this store.
func (s *Store) Dimension() int { return s.embedder.Dimension() }
