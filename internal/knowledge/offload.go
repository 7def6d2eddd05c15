package knowledge

import (
	"context"
	"fmt"
	"sort"
)

// OffloadCandidates returns the ids of nodes holding a local record,
// ordered least recently accessed first. That covers local-tier nodes
// and read-through cached copies of cloud nodes; cloud-only nodes have
// nothing left to evict.
func (s *Store) OffloadCandidates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.order {
		if s.nodes[id].Tier != TierCloud {
			ids = append(ids, id)
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return s.nodes[ids[i]].LastAccessedAt.Before(s.nodes[ids[j]].LastAccessedAt)
	})
	return ids
}

// Offload releases a node's local record: the record is written to the
// cloud tier (when configured), the local cached record is removed, and
// the node is marked cloud. A "both" node is demoted the same way; the
// write refreshes its cloud copy with any connections gained while
// cached. The node itself is never deleted; content stays resident in
// memory.
func (s *Store) Offload(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if n.Tier == TierCloud {
		return nil
	}

	if s.cloud != nil {
		if err := s.cloud.Put(ctx, s.snapshotLocked(id)); err != nil {
			return fmt.Errorf("upload node %s: %w", id, err)
		}
	}
	if err := s.kv.Delete(ctx, nodeKeyPrefix+id); err != nil {
		return fmt.Errorf("evict local record %s: %w", id, err)
	}
	n.Tier = TierCloud
	return nil
}

// LocalUsage reports the substrate's usage estimate.
func (s *Store) LocalUsage(ctx context.Context) (int64, error) {
	return s.kv.EstimateUsage(ctx)
}
