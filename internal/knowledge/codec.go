package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// exportVersion guards against future format changes on import.
const exportVersion = 1

// export is the serialized form of the full node set.
type export struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Nodes      []Node    `json:"nodes"`
}

// Export serializes every node, including connections, as JSON.
func (s *Store) Export(context.Context) ([]byte, error) {
	s.mu.RLock()
	snap := export{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Nodes:      make([]Node, 0, len(s.order)),
	}
	for _, id := range s.order {
		snap.Nodes = append(snap.Nodes, s.snapshotLocked(id))
	}
	s.mu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return raw, nil
}

// Import merges serialized nodes into the store. Nodes are merged by id,
// last write wins (incoming replaces existing), and connection sets are
// re-symmetrized after the merge. Edges referencing unknown nodes are
// dropped.
func (s *Store) Import(ctx context.Context, data []byte) error {
	var snap export
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal import: %w", err)
	}
	if snap.Version != exportVersion {
		return fmt.Errorf("unsupported export version %d", snap.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range snap.Nodes {
		in := snap.Nodes[i]
		if len(in.Embedding) != s.embedder.Dimension() {
			return fmt.Errorf("node %s: embedding dimension %d, want %d",
				in.ID, len(in.Embedding), s.embedder.Dimension())
		}
		if !in.Kind.Valid() {
			return fmt.Errorf("node %s: unknown kind %q", in.ID, in.Kind)
		}

		if existing, ok := s.nodes[in.ID]; ok {
			// Last write wins: drop the old indexed entries, keep position.
			delete(s.byKind[existing.Kind], in.ID)
			for _, tag := range existing.Tags {
				delete(s.byTag[tag], in.ID)
			}
			for peer := range s.adj[in.ID] {
				delete(s.adj[peer], in.ID)
			}
			delete(s.adj, in.ID)

			n := in
			n.Connections = nil
			*existing = n
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
		} else {
			n := in
			n.Connections = nil
			s.insertLocked(&n)
		}
	}

	// Re-link after all nodes exist so symmetry holds regardless of the
	// order records appear in the export.
	for i := range snap.Nodes {
		in := snap.Nodes[i]
		for _, peer := range in.Connections {
			if _, ok := s.nodes[peer]; ok {
				s.connectLocked(in.ID, peer)
			}
		}
	}

	for i := range snap.Nodes {
		if n, ok := s.nodes[snap.Nodes[i].ID]; ok {
			if err := s.persistLocked(ctx, n); err != nil {
				s.logger.Warn("persist imported node", "id", n.ID, "error", err)
			}
		}
	}
	return nil
}
