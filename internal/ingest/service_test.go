package ingest

import (
	"strings"
	"testing"

	"horse.fit/driftwatch/internal/enrich"
)

func TestEmbedInput_JoinsAndCaps(t *testing.T) {
	t.Parallel()

	enrichment := enrich.Enrichment{Title: "Title", Summary: "Summary"}
	input := embedInput(enrichment, "body text")
	if input != "Title\n\nSummary\n\nbody text" {
		t.Fatalf("unexpected input: %q", input)
	}

	long := strings.Repeat("w ", embedInputLimit)
	capped := embedInput(enrich.Enrichment{}, long)
	if len([]rune(capped)) != embedInputLimit {
		t.Fatalf("expected cap at %d runes, got %d", embedInputLimit, len([]rune(capped)))
	}
}

func TestFallbackTitle(t *testing.T) {
	t.Parallel()

	if got := fallbackTitle("  Provided Title  ", "ignored body"); got != "Provided Title" {
		t.Fatalf("expected provided title, got %q", got)
	}

	body := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen"
	got := fallbackTitle("", body)
	if len(strings.Fields(got)) != 12 {
		t.Fatalf("expected 12-word fallback, got %q", got)
	}
	if !strings.HasPrefix(got, "one two") || strings.Contains(got, "thirteen") {
		t.Fatalf("unexpected fallback title: %q", got)
	}
}

func TestFallbackSummary(t *testing.T) {
	t.Parallel()

	if got := fallbackSummary("  short summary  "); got != "short summary" {
		t.Fatalf("unexpected summary: %q", got)
	}

	long := strings.Repeat("x", 500)
	if got := fallbackSummary(long); len([]rune(got)) != 280 {
		t.Fatalf("expected 280-rune cap, got %d", len([]rune(got)))
	}
}
