package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nugget/relaybot/internal/search"
)

// maxSearchResults caps num_results so one call cannot fan out to an
// unbounded number of page fetches.
const maxSearchResults = 10

// Collector turns a query into result pages. *search.Collector
// implements it.
type Collector interface {
	Collect(ctx context.Context, query string, n int) []search.Page
}

// TextFetcher returns a page's visible text. *fetch.Fetcher implements it.
type TextFetcher interface {
	Text(ctx context.Context, rawURL string) (string, error)
}

// RegisterSearchTools adds web_search, site_search and x_search.
// x_search appends qualifier (for example "site:x.com") to the query.
func (r *Registry) RegisterSearchTools(c Collector, qualifier string) {
	run := func(suffix string) Handler {
		return func(ctx context.Context, args map[string]string) (string, error) {
			query := strings.TrimSpace(args["query"])
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			if suffix != "" {
				query += " " + suffix
			}
			pages := c.Collect(ctx, query, numResults(args["num_results"]))
			out, err := json.Marshal(pages)
			if err != nil {
				return "", fmt.Errorf("encode results: %w", err)
			}
			return string(out), nil
		}
	}

	r.Register(&Tool{
		Name:        "web_search",
		Description: "Search the web and return the text of the top results.",
		Example:     map[string]string{"query": "latest AI news"},
		Handler:     run(""),
	})
	r.Register(&Tool{
		Name:        "site_search",
		Description: "Search the web; put site: or other operators in the query. num_results defaults to 1.",
		Example:     map[string]string{"query": "release notes site:go.dev", "num_results": "2"},
		Handler:     run(""),
	})
	r.Register(&Tool{
		Name:        "x_search",
		Description: "Search posts on X (Twitter).",
		Example:     map[string]string{"query": "grok announcement"},
		Handler:     run(qualifier),
	})
}

// RegisterFetchTool adds fetch_url.
func (r *Registry) RegisterFetchTool(f TextFetcher) {
	r.Register(&Tool{
		Name:        "fetch_url",
		Description: "Fetch a web page and return its visible text.",
		Example:     map[string]string{"url": "https://example.com"},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			url := strings.TrimSpace(args["url"])
			text, err := f.Text(ctx, url)
			if err != nil {
				return fmt.Sprintf("Error fetching content from %s: %v", url, err), err
			}
			return text, nil
		},
	})
}

// numResults parses the num_results argument, defaulting to 1.
func numResults(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxSearchResults)
}
