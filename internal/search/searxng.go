package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/relaybot/internal/httpkit"
)

// providerTimeout bounds one query against a search backend.
const providerTimeout = 15 * time.Second

// SearXNG queries a self-hosted SearXNG instance's JSON API.
type SearXNG struct {
	baseURL string
	client  *http.Client
}

// NewSearXNG creates a provider for the instance rooted at baseURL, e.g.
// "http://localhost:8080". A refused connection is retried once, since
// local instances are often mid-restart.
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: httpkit.NewClient(
			httpkit.WithTimeout(providerTimeout),
			httpkit.WithRetry(1, 500*time.Millisecond),
		),
	}
}

func (s *SearXNG) Name() string { return "searxng" }

func (s *SearXNG) Search(ctx context.Context, q Query) ([]Hit, error) {
	params := url.Values{"q": {q.Text}, "format": {"json"}}

	var body struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := getJSON(ctx, s.client, "searxng", s.baseURL+"/search?"+params.Encode(), nil, &body); err != nil {
		return nil, err
	}

	hits := make([]Hit, len(body.Results))
	for i, r := range body.Results {
		hits[i] = Hit{Title: r.Title, URL: r.URL, Snippet: r.Content}
	}
	return keep(hits, q.limit()), nil
}
