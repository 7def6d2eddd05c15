package metasearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lumenreads/lumen/internal/knowledge"
)

const localTitleLength = 80

// KnowledgeSearcher is the slice of the knowledge store the local source
// needs.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// LocalKnowledgeSource exposes the knowledge store as a search source.
type LocalKnowledgeSource struct {
	store KnowledgeSearcher
}

// NewLocalKnowledgeSource wraps the given store.
func NewLocalKnowledgeSource(store KnowledgeSearcher) *LocalKnowledgeSource {
	return &LocalKnowledgeSource{store: store}
}

func (s *LocalKnowledgeSource) Name() string     { return string(KindLocalKnowledge) }
func (s *LocalKnowledgeSource) Kind() SourceKind { return KindLocalKnowledge }

// Search maps knowledge hits onto normalized results. The node content
// doubles as snippet, trimmed for the title.
func (s *LocalKnowledgeSource) Search(ctx context.Context, query string, f Filters) ([]Result, error) {
	opts := []knowledge.SearchOption{}
	if f.MaxResults > 0 {
		opts = append(opts, knowledge.WithLimit(f.MaxResults))
	}
	hits, err := s.store.Search(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("local knowledge search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Title:       trimTitle(hit.Node.Content),
			Snippet:     hit.Node.Content,
			Source:      s.Name(),
			Score:       hit.Relevance,
			PublishDate: hit.Node.CreatedAt,
		})
	}
	return results, nil
}

func trimTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= localTitleLength {
		return content
	}
	return string(runes[:localTitleLength]) + "..."
}

// Paper is one record in the academic stub corpus.
type Paper struct {
	Title       string
	Abstract    string
	URL         string
	Citations   int
	PublishDate time.Time
}

// AcademicSource is a stub adapter over a fixed paper corpus. It stands
// in for a real scholarly API and matches by naive term overlap.
type AcademicSource struct {
	name   string
	papers []Paper
}

// NewAcademicSource creates the stub with the given corpus.
func NewAcademicSource(name string, papers []Paper) *AcademicSource {
	if name == "" {
		name = string(KindAcademic)
	}
	return &AcademicSource{name: name, papers: papers}
}

func (s *AcademicSource) Name() string     { return s.name }
func (s *AcademicSource) Kind() SourceKind { return KindAcademic }

// Search scores each paper by the fraction of query terms appearing in
// its title or abstract.
func (s *AcademicSource) Search(_ context.Context, query string, f Filters) ([]Result, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var results []Result
	for _, p := range s.papers {
		haystack := strings.ToLower(p.Title + " " + p.Abstract)
		matched := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, Result{
			Title:       p.Title,
			Snippet:     p.Abstract,
			URL:         p.URL,
			Source:      s.name,
			Score:       float64(matched) / float64(len(terms)),
			Citations:   p.Citations,
			PublishDate: p.PublishDate,
		})
		if f.MaxResults > 0 && len(results) == f.MaxResults {
			break
		}
	}
	return results, nil
}
