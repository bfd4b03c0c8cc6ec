package normalize

import (
	"strings"
	"testing"
)

func TestContent_PlainTextPassthrough(t *testing.T) {
	t.Parallel()

	text, fallback := Content("  plain   text\ncontent ")
	if fallback {
		t.Fatalf("expected no fallback for plain text")
	}
	if text != "plain text content" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestContent_StripsNoiseElements(t *testing.T) {
	t.Parallel()

	html := `<html><head><script>var x = 1;</script><style>.a{}</style></head>
<body>
<nav>Site navigation</nav>
<header>Masthead</header>
<article>Real article body here.</article>
<footer>Copyright</footer>
</body></html>`

	text, fallback := Content(html)
	if fallback {
		t.Fatalf("expected structured parse, not fallback")
	}
	if !strings.Contains(text, "Real article body here.") {
		t.Fatalf("expected article text, got %q", text)
	}
	for _, noise := range []string{"var x", "Site navigation", "Masthead", "Copyright"} {
		if strings.Contains(text, noise) {
			t.Fatalf("expected %q to be stripped, got %q", noise, text)
		}
	}
}

func TestContent_StripsAdContainers(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<div class="ad-banner">Buy now!</div>
<div id="sponsored-box">Sponsored content</div>
<div class="advertising">Inline campaign.</div>
<div id="popupModal">Subscribe today!</div>
<div class="shadow">Keep this shadowed paragraph.</div>
<p>Main paragraph.</p>
</body></html>`

	text, _ := Content(html)
	for _, ad := range []string{"Buy now!", "Sponsored content", "Inline campaign.", "Subscribe today!"} {
		if strings.Contains(text, ad) {
			t.Fatalf("expected %q to be stripped, got %q", ad, text)
		}
	}
	if !strings.Contains(text, "Keep this shadowed paragraph.") {
		t.Fatalf("expected non-ad class to survive, got %q", text)
	}
	if !strings.Contains(text, "Main paragraph.") {
		t.Fatalf("expected main text, got %q", text)
	}
}

func TestContent_EmptyInput(t *testing.T) {
	t.Parallel()

	text, fallback := Content("   ")
	if text != "" || fallback {
		t.Fatalf("expected empty result, got text=%q fallback=%t", text, fallback)
	}
}

func TestText_Idempotent(t *testing.T) {
	t.Parallel()

	input := "  The   Quick\tBrown\nFOX  "
	once := Text(input)
	twice := Text(once)
	if once != twice {
		t.Fatalf("expected idempotence: %q vs %q", once, twice)
	}
	if once != "the quick brown fox" {
		t.Fatalf("unexpected normalized text: %q", once)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	t.Parallel()

	if got := CollapseWhitespace(" a \n\n b\t c "); got != "a b c" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestMatchesAdMarker_Semantics(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"ad-banner":       true,
		"sidebar ads":     true,
		"sponsored-link":  true,
		"advertising":     true,
		"banners":         true,
		"popupModal":      true,
		"promotion-strip": true,
		"shadow":          false,
		"gradient":        false,
		"header-badge":    false,
		"promo_container": true,
		"":                false,
	}
	for attr, want := range cases {
		if got := matchesAdMarker(attr); got != want {
			t.Fatalf("matchesAdMarker(%q) = %t, want %t", attr, got, want)
		}
	}
}
