// Package fetch downloads a URL and reduces it to the text a reader
// would see: HTML is walked for visible text, markdown is rendered and
// then walked the same way, and plain text passes through.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nugget/relaybot/internal/httpkit"
)

// Defaults used when New is given zero values.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxBytes int64 = 5 * 1024 * 1024
	DefaultMaxChars       = 4000
)

// Page holds the fetched and extracted content of a URL.
type Page struct {
	URL         string
	Title       string
	Content     string
	ContentType string
	Truncated   bool
	StatusCode  int
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	maxChars int
	logger   *slog.Logger
}

// New creates a Fetcher. timeout bounds each request and maxChars caps
// extracted text; zero selects the defaults.
func New(timeout time.Duration, maxChars int, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   httpkit.NewClient(httpkit.WithTimeout(timeout)),
		maxBytes: DefaultMaxBytes,
		maxChars: maxChars,
		logger:   logger,
	}
}

// Fetch downloads rawURL and extracts its text. A non-2xx status is an
// error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/markdown;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpkit.DrainAndClose(resp.Body, 4096)
		return nil, fmt.Errorf("fetch: HTTP %d %s for url %s", resp.StatusCode, http.StatusText(resp.StatusCode), rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	page := &Page{URL: rawURL, ContentType: contentType, StatusCode: resp.StatusCode}

	switch {
	case isHTML(contentType):
		page.Title, page.Content = extractHTML(bytes.NewReader(body))
	case isMarkdown(contentType):
		page.Title, page.Content, err = extractMarkdown(body)
		if err != nil {
			return nil, fmt.Errorf("fetch: render markdown: %w", err)
		}
	case utf8.Valid(body):
		page.Content = strings.TrimSpace(string(body))
	default:
		page.Content = fmt.Sprintf("Binary content (%s), %d bytes", contentType, len(body))
	}

	if utf8.RuneCountInString(page.Content) > f.maxChars {
		page.Content = truncateUTF8(page.Content, f.maxChars)
		page.Truncated = true
	}

	f.logger.Debug("page fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"content_type", contentType,
		"chars", len(page.Content),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return page, nil
}

// Text is Fetch reduced to the extracted content.
func (f *Fetcher) Text(ctx context.Context, rawURL string) (string, error) {
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return page.Content, nil
}

func isHTML(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func isMarkdown(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/markdown") || strings.Contains(ct, "text/x-markdown")
}

// truncateUTF8 truncates a string to maxChars runes.
func truncateUTF8(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
