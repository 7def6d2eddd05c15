package metasearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	webSearchEndpoint  = "https://html.duckduckgo.com/html/"
	webRequestTimeout  = 30 * time.Second
	webMaxResponseSize = 10 << 20
	webSnippetLength   = 300
	webMaxEnrichments  = 3
)

// WebSource scrapes a public HTML search endpoint and normalizes the
// hits. Results without a usable snippet are enriched by fetching the
// page and extracting its readable content.
type WebSource struct {
	name     string
	client   *http.Client
	endpoint string
	enrich   bool
}

// WebOption configures a WebSource.
type WebOption func(*WebSource)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WebOption {
	return func(w *WebSource) { w.client = c }
}

// WithEndpoint overrides the search endpoint, mainly for tests.
func WithEndpoint(endpoint string) WebOption {
	return func(w *WebSource) { w.endpoint = endpoint }
}

// WithoutEnrichment disables readable-content extraction for results
// lacking snippets.
func WithoutEnrichment() WebOption {
	return func(w *WebSource) { w.enrich = false }
}

// NewWebSource creates a web adapter named name (empty for "web").
func NewWebSource(name string, opts ...WebOption) *WebSource {
	if name == "" {
		name = string(KindWeb)
	}
	w := &WebSource{
		name:     name,
		client:   &http.Client{Timeout: webRequestTimeout},
		endpoint: webSearchEndpoint,
		enrich:   true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebSource) Name() string     { return w.name }
func (w *WebSource) Kind() SourceKind { return KindWeb }

// Search runs the query against the HTML endpoint and parses the result
// list. Scores decay by rank since the endpoint reports none.
func (w *WebSource) Search(ctx context.Context, query string, f Filters) ([]Result, error) {
	q := url.Values{"q": {query}}
	if f.Language != "" {
		q.Set("kl", f.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint,
		strings.NewReader(q.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, webMaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var results []Result
	doc.Find(".result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		link := sel.Find(".result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		results = append(results, Result{
			Title:   title,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
			URL:     resolveRedirect(href),
			Source:  w.name,
			Score:   1.0 / float64(i+1),
		})
		return f.MaxResults <= 0 || len(results) < f.MaxResults
	})

	if w.enrich {
		w.enrichSnippets(ctx, results)
	}
	return results, nil
}

// resolveRedirect unwraps the endpoint's redirect links to the target
// URL when possible.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}

// enrichSnippets fills missing snippets by extracting the readable body
// of the target page. Best effort, capped to the first few results.
func (w *WebSource) enrichSnippets(ctx context.Context, results []Result) {
	enriched := 0
	for i := range results {
		if results[i].Snippet != "" || results[i].URL == "" {
			continue
		}
		if enriched == webMaxEnrichments {
			return
		}
		enriched++
		if text, err := w.extract(ctx, results[i].URL); err == nil && text != "" {
			results[i].Snippet = text
		}
	}
}

// extract fetches the page and returns the opening of its readable text.
func (w *WebSource) extract(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build page request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	article, err := readability.FromReader(io.LimitReader(resp.Body, webMaxResponseSize), parsed)
	if err != nil {
		return "", fmt.Errorf("extract readable content: %w", err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if runes := []rune(text); len(runes) > webSnippetLength {
		text = string(runes[:webSnippetLength]) + "..."
	}
	return text, nil
}
