// Package crawler fetches web pages and extracts their readable content
// for ingestion into a channel's document store.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/chalssak/chalssak/internal/security"
)

// userAgent mimics a desktop browser; plenty of sites refuse default Go
// client identifiers.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxPageBytes caps how much of a page is downloaded.
const maxPageBytes = 10 << 20

// Result is the extracted content of a crawled page.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// Crawler fetches URLs with a browser-like identity and a bounded
// timeout. Fetch targets are checked against private networks before
// any connection is made. Safe for concurrent use.
type Crawler struct {
	client *http.Client
	guard  *security.URLGuard
	logger *slog.Logger
}

// New creates a Crawler. timeout <= 0 defaults to 30s.
func New(timeout time.Duration, logger *slog.Logger) *Crawler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	guard := security.NewURLGuard()
	return &Crawler{
		client: &http.Client{
			Timeout:       timeout,
			Transport:     guard.Transport(),
			CheckRedirect: guard.CheckRedirect,
		},
		guard:  guard,
		logger: logger,
	}
}

// FetchURL downloads a page and extracts its main article content.
// Only http and https URLs pointing at public hosts are accepted.
func (c *Crawler) FetchURL(ctx context.Context, rawURL string) (*Result, error) {
	if err := c.guard.Validate(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("extracting content from %s: %w", rawURL, err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = extractTitle(string(body), parsed.Host)
	}

	c.logger.Debug("crawled URL",
		"url", rawURL, "title", title,
		"content_length", len(article.TextContent), "elapsed", time.Since(start))

	return &Result{
		URL:         rawURL,
		Title:       title,
		Content:     strings.TrimSpace(article.TextContent),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// extractTitle pulls a title out of raw HTML: the <title> tag, then the
// first <h1>, then the fallback. Used when readability finds content but
// no usable title.
func extractTitle(html, fallback string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fallback
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return fallback
}

// AsMarkdown renders a crawl result as the markdown document uploaded to
// the store.
func (r *Result) AsMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	fmt.Fprintf(&b, "Source: %s\n\n---\n\n", r.URL)
	b.WriteString(r.Content)
	return b.String()
}

// Filename derives a document filename from the page title.
func (r *Result) Filename() string {
	name := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c == ' ', c == '-', c == '_':
			return '-'
		default:
			return -1
		}
	}, r.Title)
	parts := strings.FieldsFunc(name, func(c rune) bool { return c == '-' })
	name = strings.Join(parts, "-")
	if name == "" {
		name = "page"
	}
	if len(name) > 80 {
		name = name[:80]
	}
	return name + ".md"
}
