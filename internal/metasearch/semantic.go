package metasearch

import (
	"context"
	"strings"
	"unicode"
)

const maxExpansionKeywords = 5

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "about": true,
	"for": true, "from": true, "how": true, "in": true, "is": true,
	"of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true,
}

// SemanticSearch expands the query with its salient keywords before
// delegating to Search, improving recall for long natural-language
// questions.
func (a *Aggregator) SemanticSearch(ctx context.Context, query string, opts ...SearchOption) (Page, error) {
	expanded := query
	if kw := extractKeywords(query); len(kw) > 0 {
		expanded = query + " " + strings.Join(kw, " ")
	}
	return a.Search(ctx, expanded, opts...)
}

// extractKeywords picks up to maxExpansionKeywords distinct non-stopword
// terms of 4+ runes, in order of appearance.
func extractKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var keywords []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len([]rune(f)) < 4 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
		if len(keywords) == maxExpansionKeywords {
			break
		}
	}
	return keywords
}

// MultilingualSearch runs the query once per language, then dedups and
// re-ranks the union before paginating.
func (a *Aggregator) MultilingualSearch(ctx context.Context, query string, languages []string, opts ...SearchOption) (Page, error) {
	if len(languages) == 0 {
		return a.Search(ctx, query, opts...)
	}

	cfg := searchConfig{limit: DefaultLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	var merged []Result
	var sourcesUsed []string
	seenSource := make(map[string]bool)

	for _, lang := range languages {
		// Pagination applies to the merged union only: each language
		// pass runs unpaginated so offset and limit cut the ranked
		// union exactly once.
		perLang := cfg
		perLang.language = lang
		perLang.offset = 0
		perLang.limit = 0
		page, err := a.search(ctx, query, perLang)
		if err != nil {
			return Page{}, err
		}
		merged = append(merged, page.Results...)
		for _, name := range page.SourcesUsed {
			if !seenSource[name] {
				seenSource[name] = true
				sourcesUsed = append(sourcesUsed, name)
			}
		}
	}

	ranked := rank(dedup(merged))
	total := len(ranked)
	return Page{
		Results:      paginate(ranked, cfg.offset, cfg.limit),
		TotalResults: total,
		SourcesUsed:  sourcesUsed,
	}, nil
}
