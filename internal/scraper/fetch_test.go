package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testFetcher(client *http.Client) *Fetcher {
	return NewFetcher(FetchOptions{
		RatePerSecond: 1000,
		HTTPClient:    client,
	}, zerolog.Nop())
}

func TestFetchHTML_DownloadsBody(t *testing.T) {
	t.Parallel()

	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	fetcher := testFetcher(server.Client())
	body, err := fetcher.FetchHTML(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !strings.Contains(body, "hello") {
		t.Fatalf("unexpected body: %q", body)
	}
	if !strings.HasPrefix(gotAgent, "driftwatch/") {
		t.Fatalf("unexpected user agent: %q", gotAgent)
	}
}

func TestFetchHTML_RobotsDisallow(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		_, _ = w.Write([]byte("secret"))
	}))
	defer server.Close()

	fetcher := testFetcher(server.Client())
	if _, err := fetcher.FetchHTML(context.Background(), server.URL+"/private/report"); !errors.Is(err, ErrDisallowed) {
		t.Fatalf("expected ErrDisallowed, got %v", err)
	}

	// The allowed part of the site still fetches.
	if _, err := fetcher.FetchHTML(context.Background(), server.URL+"/public"); err != nil {
		t.Fatalf("expected allowed path to fetch, got %v", err)
	}
}

func TestFetchHTML_UnreachableRobotsAllows(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.Error(w, "broken", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("content"))
	}))
	defer server.Close()

	fetcher := testFetcher(server.Client())
	if _, err := fetcher.FetchHTML(context.Background(), server.URL+"/page"); err != nil {
		t.Fatalf("expected fetch despite broken robots.txt, got %v", err)
	}
}

func TestFetchHTML_BodyLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	fetcher := NewFetcher(FetchOptions{
		BodyByteLimit: 100,
		RatePerSecond: 1000,
		HTTPClient:    server.Client(),
	}, zerolog.Nop())

	body, err := fetcher.FetchHTML(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(body) != 100 {
		t.Fatalf("expected truncation at 100 bytes, got %d", len(body))
	}
}

func TestFetchHTML_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	fetcher := testFetcher(server.Client())
	if _, err := fetcher.FetchHTML(context.Background(), server.URL+"/missing"); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}

func TestFetchHTML_RejectsBadURLs(t *testing.T) {
	t.Parallel()

	fetcher := testFetcher(nil)
	if _, err := fetcher.FetchHTML(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := fetcher.FetchHTML(context.Background(), "ftp://example.com/file"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestExtractItemTitles(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<article><h2><a href="/a">First Headline Story</a></h2></article>
<article><h2><a href="/b">Second Headline Story</a></h2></article>
<article><h2><a href="/a-again">first headline story</a></h2></article>
<article><h2><a href="/short">tiny</a></h2></article>
</body></html>`

	titles, err := ExtractItemTitles(html)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(titles) != 2 {
		t.Fatalf("expected two deduplicated titles, got %v", titles)
	}
	if titles[0] != "First Headline Story" || titles[1] != "Second Headline Story" {
		t.Fatalf("unexpected titles: %v", titles)
	}
}

func TestExtractItemTitles_NoListing(t *testing.T) {
	t.Parallel()

	titles, err := ExtractItemTitles("<html><body><p>Just a paragraph.</p></body></html>")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(titles) != 0 {
		t.Fatalf("expected no titles, got %v", titles)
	}
}

func TestMergeTitles(t *testing.T) {
	t.Parallel()

	merged := mergeTitles([]string{"Story A", "Story B"}, []string{"story a", "  Story C  ", "Story C"})
	if len(merged) != 3 {
		t.Fatalf("expected three titles, got %v", merged)
	}
	if merged[0] != "Story A" || merged[1] != "Story B" {
		t.Fatalf("expected existing titles to keep their order, got %v", merged)
	}
	if merged[2] != "Story C" {
		t.Fatalf("expected new title appended, got %v", merged)
	}
}
