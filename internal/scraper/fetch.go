// Package scraper polls monitored web resources, classifies what changed
// and hands novel content to the ingest pipeline.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	DefaultFetchTimeout  = 12 * time.Second
	DefaultBodyByteLimit = 2 * 1024 * 1024

	defaultUserAgent = "driftwatch/1.0 (+https://horse.fit/driftwatch)"

	robotsCacheTTL = 30 * time.Minute
)

// FetchOptions controls HTTP behavior for resource checks.
type FetchOptions struct {
	Timeout       time.Duration
	BodyByteLimit int64
	UserAgent     string
	RatePerSecond float64
	HTTPClient    *http.Client
}

type robotsEntry struct {
	group     *robotstxt.Group
	fetchedAt time.Time
}

// Fetcher downloads pages politely: one shared rate limiter across all
// hosts plus a per-host robots.txt cache.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	bodyLimit int64
	userAgent string
	limiter   *rate.Limiter
	logger    zerolog.Logger

	mu     sync.Mutex
	robots map[string]robotsEntry
}

func NewFetcher(opts FetchOptions, logger zerolog.Logger) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	bodyLimit := opts.BodyByteLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyByteLimit
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	perSecond := opts.RatePerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Fetcher{
		client:    client,
		timeout:   timeout,
		bodyLimit: bodyLimit,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:    logger,
		robots:    make(map[string]robotsEntry),
	}
}

// ErrDisallowed marks URLs the site's robots.txt excludes for our agent.
var ErrDisallowed = fmt.Errorf("url disallowed by robots.txt")

// FetchHTML downloads one page body after the rate limiter and robots.txt
// both clear it.
func (f *Fetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	page := strings.TrimSpace(pageURL)
	if page == "" {
		return "", fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(page)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	if !f.allowedByRobots(ctx, parsed) {
		return "", fmt.Errorf("%w: %s", ErrDisallowed, page)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	// Pages off the happy path still ship legacy encodings; decode to
	// UTF-8 before anything downstream hashes the text.
	decoded, err := charset.NewReader(io.LimitReader(resp.Body, f.bodyLimit), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// allowedByRobots consults the cached robots.txt group for the host.
// Unreachable or malformed robots files allow everything.
func (f *Fetcher) allowedByRobots(ctx context.Context, pageURL *url.URL) bool {
	host := pageURL.Host

	f.mu.Lock()
	entry, ok := f.robots[host]
	f.mu.Unlock()

	if !ok || time.Since(entry.fetchedAt) > robotsCacheTTL {
		entry = robotsEntry{group: f.fetchRobotsGroup(ctx, pageURL), fetchedAt: time.Now()}
		f.mu.Lock()
		f.robots[host] = entry
		f.mu.Unlock()
	}

	if entry.group == nil {
		return true
	}
	path := pageURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	return entry.group.Test(path)
}

func (f *Fetcher) fetchRobotsGroup(ctx context.Context, pageURL *url.URL) *robotstxt.Group {
	robotsURL := pageURL.Scheme + "://" + pageURL.Host + "/robots.txt"

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug().Err(err).Str("host", pageURL.Host).Msg("robots.txt unreachable; allowing")
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		f.logger.Debug().Err(err).Str("host", pageURL.Host).Msg("robots.txt unparsable; allowing")
		return nil
	}
	return data.FindGroup(f.userAgent)
}

// ExtractArticle pulls the readable title and text out of an article page.
func ExtractArticle(html, pageURL string) (string, string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", "", fmt.Errorf("parse page url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return "", "", fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", "", fmt.Errorf("render readability text: %w", err)
	}

	text := strings.TrimSpace(rendered.String())
	if text == "" {
		text = strings.TrimSpace(article.Excerpt())
	}
	if text == "" {
		return "", "", fmt.Errorf("reader extracted empty content")
	}
	return strings.TrimSpace(article.Title()), text, nil
}

// itemSelectors are tried in order on index pages; the first selector that
// yields at least two titles wins.
var itemSelectors = []string{
	"article h1 a, article h2 a, article h3 a",
	"article h1, article h2, article h3",
	"li h2 a, li h3 a",
	"h2 a, h3 a",
	"li a",
}

// ExtractItemTitles extracts the linked item titles of a listing page.
func ExtractItemTitles(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	for _, selector := range itemSelectors {
		titles := collectTitles(doc, selector)
		if len(titles) >= 2 {
			return titles, nil
		}
	}
	return nil, nil
}

func collectTitles(doc *goquery.Document, selector string) []string {
	seen := make(map[string]struct{})
	titles := make([]string, 0, 16)
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.Join(strings.Fields(sel.Text()), " ")
		if title == "" || len([]rune(title)) < 8 {
			return
		}
		key := strings.ToLower(title)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		titles = append(titles, title)
	})
	return titles
}
