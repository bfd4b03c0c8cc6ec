package enrich

import (
	"testing"
)

func TestParseResponse_RawJSON(t *testing.T) {
	t.Parallel()

	raw := `{"title":"Launch update","summary":"The launch slipped a week.","tags":["Space","space","  LAUNCH "],"category":"aerospace","atomic_statements":[{"type":"fact","text":"Launch moved to March.","order":1}]}`

	enrichment, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	if enrichment.Title != "Launch update" {
		t.Fatalf("unexpected title: %q", enrichment.Title)
	}
	if len(enrichment.Tags) != 2 || enrichment.Tags[0] != "space" || enrichment.Tags[1] != "launch" {
		t.Fatalf("expected deduplicated lowercase tags, got %v", enrichment.Tags)
	}
	if len(enrichment.AtomicStatements) != 1 || enrichment.AtomicStatements[0].Text != "Launch moved to March." {
		t.Fatalf("unexpected statements: %v", enrichment.AtomicStatements)
	}
}

func TestParseResponse_FencedJSON(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"title\":\"Fenced\",\"summary\":\"s\",\"category\":\"general\"}\n```"
	enrichment, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("expected fenced JSON to parse, got %v", err)
	}
	if enrichment.Title != "Fenced" {
		t.Fatalf("unexpected title: %q", enrichment.Title)
	}
}

func TestParseResponse_EmbeddedObject(t *testing.T) {
	t.Parallel()

	raw := `Here is the enrichment you asked for: {"title":"Embedded","summary":"s"} hope that helps!`
	enrichment, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("expected embedded object to parse, got %v", err)
	}
	if enrichment.Title != "Embedded" {
		t.Fatalf("unexpected title: %q", enrichment.Title)
	}
}

func TestParseResponse_BadTagsDropped(t *testing.T) {
	t.Parallel()

	raw := `{"title":"Partial","summary":"s","tags":"not-an-array"}`
	enrichment, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("expected parse to succeed despite bad tags, got %v", err)
	}
	if enrichment.Title != "Partial" {
		t.Fatalf("unexpected title: %q", enrichment.Title)
	}
	if len(enrichment.Tags) != 0 {
		t.Fatalf("expected malformed tags to be dropped, got %v", enrichment.Tags)
	}
}

func TestParseResponse_EmptyInput(t *testing.T) {
	t.Parallel()

	enrichment, err := ParseResponse("   ")
	if err == nil {
		t.Fatalf("expected an error for empty input")
	}
	if enrichment.Category != DefaultCategory {
		t.Fatalf("expected defaults to be applied, got %+v", enrichment)
	}
}

func TestParseResponse_NotJSON(t *testing.T) {
	t.Parallel()

	if _, err := ParseResponse("no json here at all"); err == nil {
		t.Fatalf("expected an error for non-JSON input")
	}
}

func TestCleanStatements_OrderAndDefaults(t *testing.T) {
	t.Parallel()

	statements := cleanStatements([]Statement{
		{Text: "second", Order: 2},
		{Text: "  ", Order: 0},
		{Text: "first", Order: 1, Type: "CLAIM"},
	})
	if len(statements) != 2 {
		t.Fatalf("expected empty statements to be dropped, got %d", len(statements))
	}
	if statements[0].Text != "first" || statements[1].Text != "second" {
		t.Fatalf("expected order sorting, got %v", statements)
	}
	if statements[0].Type != "claim" {
		t.Fatalf("expected lowercased type, got %q", statements[0].Type)
	}
	if statements[1].Type != "fact" {
		t.Fatalf("expected default type fact, got %q", statements[1].Type)
	}
}

func TestApplyPrefilled_OverridesParsedFields(t *testing.T) {
	t.Parallel()

	enrichment := ApplyPrefilled(Enrichment{Title: "model title", Category: "model"}, map[string]any{
		"title":    "curated title",
		"category": "press_release",
		"tags":     []string{"Official"},
	})
	if enrichment.Title != "curated title" {
		t.Fatalf("expected prefilled title to win, got %q", enrichment.Title)
	}
	if enrichment.Category != "press_release" {
		t.Fatalf("expected prefilled category to win, got %q", enrichment.Category)
	}
	if len(enrichment.Tags) != 1 {
		t.Fatalf("expected prefilled tags, got %v", enrichment.Tags)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	enrichment := ApplyDefaults(Enrichment{})
	if enrichment.Category != DefaultCategory {
		t.Fatalf("expected default category, got %q", enrichment.Category)
	}
	if enrichment.Tags == nil {
		t.Fatalf("expected non-nil tags")
	}
	if enrichment.AtomicStatements == nil {
		t.Fatalf("expected non-nil statements")
	}
}
