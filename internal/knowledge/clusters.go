package knowledge

import (
	"sort"

	"github.com/google/uuid"

	"github.com/lumenreads/lumen/internal/embedding"
)

// DiscoverClusters finds connected components of the graph by breadth-first
// traversal and returns those with at least minSize members. Components are
// seeded in insertion order so repeated calls over the same graph yield the
// same clusters.
func (s *Store) DiscoverClusters(minSize int) []Cluster {
	if minSize < 1 {
		minSize = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[string]struct{}, len(s.nodes))
	var clusters []Cluster

	for _, seed := range s.order {
		if _, done := visited[seed]; done {
			continue
		}

		members := s.componentLocked(seed, visited)
		if len(members) < minSize {
			continue
		}

		clusters = append(clusters, Cluster{
			ID:        uuid.NewString(),
			Centroid:  seed,
			Members:   members,
			Coherence: s.coherenceLocked(members),
			Domain:    s.dominantTagLocked(members),
		})
	}
	return clusters
}

// componentLocked walks the component containing seed breadth-first,
// marking every reached node visited.
func (s *Store) componentLocked(seed string, visited map[string]struct{}) []string {
	queue := []string{seed}
	visited[seed] = struct{}{}
	var members []string

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		members = append(members, id)

		peers := make([]string, 0, len(s.adj[id]))
		for peer := range s.adj[id] {
			peers = append(peers, peer)
		}
		sort.Strings(peers)
		for _, peer := range peers {
			if _, done := visited[peer]; done {
				continue
			}
			if _, ok := s.nodes[peer]; !ok {
				continue
			}
			visited[peer] = struct{}{}
			queue = append(queue, peer)
		}
	}
	return members
}

// coherenceLocked is the mean pairwise similarity of member embeddings.
// A singleton is perfectly coherent; an empty member list scores 0.
func (s *Store) coherenceLocked(members []string) float64 {
	if len(members) == 0 {
		return 0
	}
	if len(members) == 1 {
		return 1
	}

	var sum float64
	var pairs int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sum += embedding.Cosine(s.nodes[members[i]].Embedding, s.nodes[members[j]].Embedding)
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

// dominantTagLocked returns the most frequent tag among members, ties
// broken lexicographically. Empty when no member carries tags.
func (s *Store) dominantTagLocked(members []string) string {
	counts := make(map[string]int)
	for _, id := range members {
		for _, tag := range s.nodes[id].Tags {
			counts[tag]++
		}
	}

	var best string
	var bestCount int
	for tag, count := range counts {
		if count > bestCount || (count == bestCount && (best == "" || tag < best)) {
			best = tag
			bestCount = count
		}
	}
	return best
}
