// Package knowledge implements the semantic knowledge store: an in-memory
// node graph with symmetric connections, embedding-based retrieval, tiered
// (local/cloud) placement over a key-value substrate, cluster discovery and
// digest synthesis.
//
// Store is safe for concurrent use by multiple goroutines.
package knowledge

import "time"

// Kind classifies a knowledge node.
type Kind string

// Node kinds.
const (
	KindConcept     Kind = "concept"
	KindFact        Kind = "fact"
	KindTheory      Kind = "theory"
	KindApplication Kind = "application"
	KindQuestion    Kind = "question"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindConcept, KindFact, KindTheory, KindApplication, KindQuestion:
		return true
	}
	return false
}

// Tier is the storage placement of a node.
type Tier string

// Node tiers. The only automatic transition is local -> cloud (offload);
// cloud -> both happens as a read-through cache effect on access.
const (
	TierLocal Tier = "local"
	TierCloud Tier = "cloud"
	TierBoth  Tier = "both"
)

// Node is a stored unit of knowledge. Connections hold the ids of
// neighboring nodes; the store keeps them symmetric.
type Node struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Kind           Kind      `json:"kind"`
	Connections    []string  `json:"connections"`
	Importance     float64   `json:"importance"`
	Credibility    float64   `json:"credibility"`
	Sources        []string  `json:"sources,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Embedding      []float32 `json:"embedding"`
	Tier           Tier      `json:"tier"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Result is a retrieval hit with its similarity score.
type Result struct {
	Node      Node
	Relevance float64
}

// Cluster is a connected component of the graph discovered by traversal.
// Clusters are recomputed per request, never stored.
type Cluster struct {
	ID        string
	Centroid  string   // seed node id
	Members   []string // node ids in discovery order
	Coherence float64  // mean pairwise similarity of member embeddings
	Domain    string   // most frequent tag among members
}
