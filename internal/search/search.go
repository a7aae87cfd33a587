// Package search finds web pages for the search tools.
//
// Backends implement [Provider]. A [Manager] asks the configured primary
// backend first and falls back to the others, and a [Collector] turns the
// hits into page text, which is what the model actually reads.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/nugget/relaybot/internal/httpkit"
)

// defaultLimit applies when a query does not set one.
const defaultLimit = 5

// Hit is one search result.
type Hit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Query is a single search request.
type Query struct {
	Text string
	// Limit caps the number of hits. Zero means defaultLimit.
	Limit int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}

// Provider is a search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Hit, error)
}

// Manager routes queries across registered providers.
type Manager struct {
	providers map[string]Provider
	primary   string
	logger    *slog.Logger
}

// NewManager creates a manager that prefers the provider named primary.
func NewManager(primary string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
		logger:    logger,
	}
}

// Register adds a provider, replacing one with the same name.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Search asks the primary provider, then every other provider in name
// order, and returns the first successful answer. When all fail the
// error carries each provider's failure.
func (m *Manager) Search(ctx context.Context, q Query) ([]Hit, error) {
	order := m.order()
	if len(order) == 0 {
		return nil, fmt.Errorf("search provider %q not configured", m.primary)
	}

	var errs []error
	for _, p := range order {
		hits, err := p.Search(ctx, q)
		if err == nil {
			return hits, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		m.logger.Warn("search provider failed", "provider", p.Name(), "error", err)
	}
	if len(errs) == 1 {
		return nil, errs[0]
	}
	return nil, errors.Join(errs...)
}

func (m *Manager) order() []Provider {
	var out []Provider
	if p, ok := m.providers[m.primary]; ok {
		out = append(out, p)
	}
	for _, name := range m.Providers() {
		if name != m.primary {
			out = append(out, m.providers[name])
		}
	}
	return out
}

// Providers returns the sorted names of all registered providers.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// getJSON performs a GET against a backend and decodes the JSON body
// into v. Errors are prefixed with the backend name.
func getJSON(ctx context.Context, client *http.Client, backend, rawURL string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", backend, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", backend, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode response: %w", backend, err)
	}
	return nil
}

// keep returns at most n hits, skipping entries without a URL.
func keep(hits []Hit, n int) []Hit {
	out := make([]Hit, 0, min(n, len(hits)))
	for _, h := range hits {
		if len(out) == n {
			break
		}
		if h.URL != "" {
			out = append(out, h)
		}
	}
	return out
}
