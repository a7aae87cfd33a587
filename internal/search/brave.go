package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nugget/relaybot/internal/httpkit"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave Search web API.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewBrave creates a provider authenticated with apiKey.
func NewBrave(apiKey string) *Brave {
	return &Brave{
		apiKey:   apiKey,
		endpoint: braveEndpoint,
		client:   httpkit.NewClient(httpkit.WithTimeout(providerTimeout)),
	}
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, q Query) ([]Hit, error) {
	n := q.limit()
	params := url.Values{"q": {q.Text}, "count": {strconv.Itoa(n)}}
	header := http.Header{"X-Subscription-Token": {b.apiKey}}

	var body struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := getJSON(ctx, b.client, "brave", b.endpoint+"?"+params.Encode(), header, &body); err != nil {
		return nil, err
	}

	hits := make([]Hit, len(body.Web.Results))
	for i, r := range body.Web.Results {
		hits[i] = Hit{Title: r.Title, URL: r.URL, Snippet: r.Description}
	}
	return keep(hits, n), nil
}
