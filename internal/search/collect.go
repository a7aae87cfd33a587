package search

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Page is a search hit with the visible text of the page behind it.
type Page struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Searcher runs a query. *Manager implements it.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Hit, error)
}

// Fetcher returns the visible text of a URL. *fetch.Fetcher implements it.
type Fetcher interface {
	Text(ctx context.Context, rawURL string) (string, error)
}

// Collector searches and then fetches every result page concurrently.
type Collector struct {
	searcher     Searcher
	fetcher      Fetcher
	contentChars int
	concurrency  int
	logger       *slog.Logger
}

// NewCollector creates a collector. contentChars caps each page's text
// (default 2000); concurrency bounds simultaneous fetches (default 4).
func NewCollector(s Searcher, f Fetcher, contentChars, concurrency int, logger *slog.Logger) *Collector {
	if contentChars <= 0 {
		contentChars = 2000
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		searcher:     s,
		fetcher:      f,
		contentChars: contentChars,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// Collect returns up to n pages for query, in result order. It never
// fails: a page that cannot be fetched carries the error as its content,
// and a failed search yields a single entry describing the failure.
func (c *Collector) Collect(ctx context.Context, query string, n int) []Page {
	if n <= 0 {
		n = 1
	}

	results, err := c.searcher.Search(ctx, Query{Text: query, Limit: n})
	if err != nil {
		c.logger.Warn("web search failed", "query", query, "error", err)
		return []Page{{URL: "", Content: fmt.Sprintf("An error occurred during web search: %v", err)}}
	}
	if len(results) > n {
		results = results[:n]
	}

	pages := make([]Page, len(results))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, r := range results {
		g.Go(func() error {
			text, err := c.fetcher.Text(ctx, r.URL)
			if err != nil {
				c.logger.Debug("result fetch failed", "url", r.URL, "error", err)
				text = fmt.Sprintf("Error fetching content: %v", err)
			}
			pages[i] = Page{URL: r.URL, Content: truncate(text, c.contentChars)}
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Debug("web search collected", "query", query, "pages", len(pages))
	return pages
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
