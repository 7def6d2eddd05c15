package knowledge

import (
	"fmt"
	"sort"
	"strings"
)

// synthesis section headers, rendered in this order. Kinds without a
// header (fact, question) fall under the general section.
var synthesisSections = []struct {
	kind   Kind
	header string
}{
	{KindConcept, "Concepts"},
	{KindTheory, "Theories"},
	{KindApplication, "Applications"},
	{KindFact, "Facts"},
	{KindQuestion, "Open Questions"},
}

// Synthesize renders a structured digest of the referenced nodes, grouped
// by kind, followed by the cross-references between them. Empty sections
// are omitted. Unknown ids are skipped.
func (s *Store) Synthesize(nodeIDs []string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKind := make(map[Kind][]*Node)
	included := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		n, ok := s.nodes[id]
		if !ok {
			continue
		}
		if _, dup := included[id]; dup {
			continue
		}
		included[id] = struct{}{}
		byKind[n.Kind] = append(byKind[n.Kind], n)
	}
	if len(included) == 0 {
		return ""
	}

	var b strings.Builder
	for _, section := range synthesisSections {
		nodes := byKind[section.kind]
		if len(nodes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", section.header)
		for _, n := range nodes {
			fmt.Fprintf(&b, "- %s\n", n.Content)
		}
		b.WriteString("\n")
	}

	refs := s.crossReferencesLocked(included)
	if len(refs) > 0 {
		b.WriteString("## Cross-references\n")
		for _, ref := range refs {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// crossReferencesLocked lists each edge between included nodes once,
// rendered as a content pair, in deterministic order.
func (s *Store) crossReferencesLocked(included map[string]struct{}) []string {
	seen := make(map[string]struct{})
	var refs []string
	ids := make([]string, 0, len(included))
	for id := range included {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		peers := make([]string, 0, len(s.adj[id]))
		for peer := range s.adj[id] {
			if _, ok := included[peer]; ok {
				peers = append(peers, peer)
			}
		}
		sort.Strings(peers)
		for _, peer := range peers {
			a, b := id, peer
			if b < a {
				a, b = b, a
			}
			key := a + "|" + b
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			refs = append(refs, fmt.Sprintf("%s <-> %s",
				summarize(s.nodes[a].Content), summarize(s.nodes[b].Content)))
		}
	}
	return refs
}

// summarize truncates content for digest display.
func summarize(content string) string {
	const max = 60
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max-1]) + "…"
}
