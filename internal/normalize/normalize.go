// Package normalize reduces raw HTML or plain text to canonical semantic
// text suitable for fingerprinting and enrichment.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Elements that never carry article content.
var noiseSelectors = []string{
	"script",
	"style",
	"noscript",
	"nav",
	"header",
	"footer",
	"iframe",
	"form",
	"aside",
}

// Markers matched case-insensitively as substrings of the class/id value,
// so "advertising", "banners" and "popupModal" are all caught.
var adMarkerSubstrings = []string{
	"advert",
	"sponsor",
	"promo",
	"banner",
	"popup",
}

// The two short markers stay whole-token; a substring match on "ad" would
// strip elements like "shadow" or "gradient".
var adMarkerTokens = []string{
	"ad",
	"ads",
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Content extracts visible text from raw HTML or plain text, strips noise
// elements and advertisement-shaped containers, and collapses whitespace.
// It never fails: when structured parsing is impossible it degrades to a
// tag-stripping fallback and returns best-effort text. The second return
// value reports whether the fallback path was taken.
func Content(htmlOrText string) (string, bool) {
	trimmed := strings.TrimSpace(htmlOrText)
	if trimmed == "" {
		return "", false
	}

	if !looksLikeHTML(trimmed) {
		return CollapseWhitespace(trimmed), false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return stripTagsFallback(trimmed), true
	}

	doc.Find(strings.Join(noiseSelectors, ", ")).Remove()

	doc.Find("[class], [id]").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		if matchesAdMarker(class) || matchesAdMarker(id) {
			sel.Remove()
		}
	})

	text := CollapseWhitespace(doc.Text())
	if text == "" {
		return stripTagsFallback(trimmed), true
	}
	return text, false
}

// Text lowercases and collapses text for hashing. Idempotent.
func Text(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// CollapseWhitespace reduces whitespace runs to single spaces and trims ends.
func CollapseWhitespace(input string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(input, " "))
}

func looksLikeHTML(input string) bool {
	return strings.ContainsRune(input, '<') && strings.ContainsRune(input, '>')
}

func matchesAdMarker(attr string) bool {
	if attr == "" {
		return false
	}
	lowered := strings.ToLower(attr)
	for _, marker := range adMarkerSubstrings {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	tokens := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, token := range tokens {
		for _, marker := range adMarkerTokens {
			if token == marker {
				return true
			}
		}
	}
	return false
}

func stripTagsFallback(raw string) string {
	withoutScripts := removeBlock(raw, "script")
	withoutStyles := removeBlock(withoutScripts, "style")
	stripped := tagPattern.ReplaceAllString(withoutStyles, " ")
	return CollapseWhitespace(stripped)
}

func removeBlock(raw, tag string) string {
	pattern, err := regexp.Compile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	if err != nil {
		return raw
	}
	return pattern.ReplaceAllString(raw, " ")
}
