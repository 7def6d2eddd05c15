// Package metasearch fans a query out to multiple search sources and
// merges the answers into one ranked, de-duplicated list. Sources are
// opaque adapters; the local knowledge store participates as one of them.
package metasearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenreads/lumen/internal/log"
)

// SourceKind categorizes an adapter.
type SourceKind string

const (
	KindLocalKnowledge SourceKind = "local-knowledge"
	KindWeb            SourceKind = "web"
	KindAcademic       SourceKind = "academic"
)

// Ranking bonuses applied on top of the weighted relevance score.
const (
	citationBonusScale = 0.1
	recencyBonus       = 0.05

	DefaultLimit  = 10
	DefaultWeight = 1.0
)

var (
	ErrEmptyQuery       = errors.New("metasearch: empty query")
	ErrUnknownSource    = errors.New("metasearch: unknown source")
	ErrNoSources        = errors.New("metasearch: no enabled sources")
	ErrSourceRegistered = errors.New("metasearch: source already registered")
)

// Filters constrain what an adapter should return.
type Filters struct {
	Language   string
	MaxResults int
}

// Result is one search hit, normalized across sources.
type Result struct {
	Title       string
	Snippet     string
	URL         string
	Source      string
	Score       float64
	Citations   int
	PublishDate time.Time
}

// Source is a single search adapter. Implementations must be safe for
// concurrent use.
type Source interface {
	Name() string
	Kind() SourceKind
	Search(ctx context.Context, query string, f Filters) ([]Result, error)
}

// SourceInfo describes a registered source.
type SourceInfo struct {
	Name     string
	Kind     SourceKind
	Enabled  bool
	Weight   float64
	Priority int
}

type sourceEntry struct {
	src      Source
	enabled  bool
	weight   float64
	priority int
}

// Aggregator owns the registered sources and merges their results.
type Aggregator struct {
	mu      sync.RWMutex
	sources map[string]*sourceEntry

	logger log.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(l log.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator with no sources registered.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		sources: make(map[string]*sourceEntry),
		logger:  log.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterOption configures one source registration.
type RegisterOption func(*sourceEntry)

// WithWeight scales the source's relevance scores. Values outside [0,1]
// are clamped.
func WithWeight(w float64) RegisterOption {
	return func(e *sourceEntry) {
		e.weight = math.Min(1, math.Max(0, w))
	}
}

// WithPriority orders sources; lower values are queried and listed first.
func WithPriority(p int) RegisterOption {
	return func(e *sourceEntry) { e.priority = p }
}

// WithDisabled registers the source switched off.
func WithDisabled() RegisterOption {
	return func(e *sourceEntry) { e.enabled = false }
}

// Register adds a source under its own name.
func (a *Aggregator) Register(src Source, opts ...RegisterOption) error {
	if src == nil || src.Name() == "" {
		return fmt.Errorf("metasearch: register: nil or unnamed source")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sources[src.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrSourceRegistered, src.Name())
	}
	entry := &sourceEntry{src: src, enabled: true, weight: DefaultWeight}
	for _, opt := range opts {
		opt(entry)
	}
	a.sources[src.Name()] = entry
	return nil
}

// ToggleSource enables or disables a registered source.
func (a *Aggregator) ToggleSource(name string, enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.sources[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	entry.enabled = enabled
	return nil
}

// GetSources lists registered sources sorted by priority then name.
func (a *Aggregator) GetSources() []SourceInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(a.sources))
	for name, e := range a.sources {
		infos = append(infos, SourceInfo{
			Name:     name,
			Kind:     e.src.Kind(),
			Enabled:  e.enabled,
			Weight:   e.weight,
			Priority: e.priority,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Priority != infos[j].Priority {
			return infos[i].Priority < infos[j].Priority
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// SearchOption configures one Search call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	limit    int
	offset   int
	allow    map[string]bool
	language string
}

// WithLimit caps the number of returned results.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithOffset skips the first n ranked results.
func WithOffset(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.offset = n
		}
	}
}

// WithSources restricts the query to the named sources.
func WithSources(names ...string) SearchOption {
	return func(c *searchConfig) {
		c.allow = make(map[string]bool, len(names))
		for _, n := range names {
			c.allow[n] = true
		}
	}
}

// WithLanguage passes a language filter to every adapter.
func WithLanguage(lang string) SearchOption {
	return func(c *searchConfig) { c.language = lang }
}

// Page is one page of aggregated results.
type Page struct {
	Results      []Result
	TotalResults int
	SourcesUsed  []string
}

// Search queries all selected sources concurrently, then scales, dedups,
// ranks and paginates the union. A single source failure is logged and
// skipped; Search fails only when no source could be queried at all.
func (a *Aggregator) Search(ctx context.Context, query string, opts ...SearchOption) (Page, error) {
	cfg := searchConfig{limit: DefaultLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return a.search(ctx, query, cfg)
}

func (a *Aggregator) search(ctx context.Context, query string, cfg searchConfig) (Page, error) {
	if strings.TrimSpace(query) == "" {
		return Page{}, ErrEmptyQuery
	}

	entries, names := a.selectSources(cfg.allow)
	if len(entries) == 0 {
		return Page{}, ErrNoSources
	}

	filters := Filters{Language: cfg.language, MaxResults: cfg.limit + cfg.offset}
	perSource := make([][]Result, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		g.Go(func() error {
			results, err := e.src.Search(gctx, query, filters)
			if err != nil {
				a.logger.Warn("search source failed",
					slog.String("source", e.src.Name()), slog.Any("error", err))
				return nil
			}
			scaled := make([]Result, 0, len(results))
			for _, r := range results {
				if r.Source == "" {
					r.Source = e.src.Name()
				}
				r.Score *= e.weight
				scaled = append(scaled, r)
			}
			perSource[i] = scaled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Page{}, fmt.Errorf("query sources: %w", err)
	}

	var merged []Result
	for _, results := range perSource {
		merged = append(merged, results...)
	}

	ranked := rank(dedup(merged))
	total := len(ranked)
	return Page{
		Results:      paginate(ranked, cfg.offset, cfg.limit),
		TotalResults: total,
		SourcesUsed:  names,
	}, nil
}

// selectSources returns enabled entries (restricted to allow when set)
// ordered by ascending priority, plus their names in the same order.
func (a *Aggregator) selectSources(allow map[string]bool) ([]*sourceEntry, []string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	type named struct {
		name string
		e    *sourceEntry
	}
	var selected []named
	for name, e := range a.sources {
		if !e.enabled {
			continue
		}
		if allow != nil && !allow[name] {
			continue
		}
		selected = append(selected, named{name, e})
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].e.priority != selected[j].e.priority {
			return selected[i].e.priority < selected[j].e.priority
		}
		return selected[i].name < selected[j].name
	})

	entries := make([]*sourceEntry, len(selected))
	names := make([]string, len(selected))
	for i, s := range selected {
		entries[i] = s.e
		names[i] = s.name
	}
	return entries, names
}

// dedup removes results sharing an identical (title, source) pair,
// keeping the higher-scored one.
func dedup(results []Result) []Result {
	type key struct{ title, source string }
	seen := make(map[key]int, len(results))
	out := results[:0]
	for _, r := range results {
		k := key{r.Title, r.Source}
		if i, ok := seen[k]; ok {
			if r.Score > out[i].Score {
				out[i] = r
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, r)
	}
	return out
}

// rank sorts descending by the weighted score plus citation and recency
// bonuses. The recency bonus goes to results published after the median
// publish date among dated results.
func rank(results []Result) []Result {
	median := medianPublishDate(results)

	finalScore := func(r Result) float64 {
		score := r.Score
		if r.Citations > 0 {
			score += math.Log10(float64(r.Citations)+1) * citationBonusScale
		}
		if !median.IsZero() && r.PublishDate.After(median) {
			score += recencyBonus
		}
		return score
	}

	sort.SliceStable(results, func(i, j int) bool {
		si, sj := finalScore(results[i]), finalScore(results[j])
		if si != sj {
			return si > sj
		}
		return results[i].Title < results[j].Title
	})
	return results
}

func medianPublishDate(results []Result) time.Time {
	var dates []time.Time
	for _, r := range results {
		if !r.PublishDate.IsZero() {
			dates = append(dates, r.PublishDate)
		}
	}
	if len(dates) < 2 {
		return time.Time{}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates[(len(dates)-1)/2]
}

func paginate(results []Result, offset, limit int) []Result {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
