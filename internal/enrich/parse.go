package enrich

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParseResponse decodes an LLM response into an Enrichment. Models wrap
// JSON in markdown fences or leading prose often enough that a strict
// decode would reject a large share of otherwise-usable responses, so the
// parser tries the raw text, then a fence-stripped form, then the first
// balanced JSON object embedded in the text. Fields that fail to decode
// individually are dropped rather than failing the whole response.
func ParseResponse(raw string) (Enrichment, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ApplyDefaults(Enrichment{}), fmt.Errorf("enrichment response is empty")
	}

	candidates := []string{trimmed}
	if stripped := stripCodeFences(trimmed); stripped != trimmed {
		candidates = append(candidates, stripped)
	}
	if embedded := extractJSONObject(trimmed); embedded != "" {
		candidates = append(candidates, embedded)
	}

	var lastErr error
	for _, candidate := range candidates {
		enrichment, err := decodeEnrichment(candidate)
		if err == nil {
			return ApplyDefaults(enrichment), nil
		}
		lastErr = err
	}

	return ApplyDefaults(Enrichment{}), fmt.Errorf("decode enrichment response: %w", lastErr)
}

func decodeEnrichment(candidate string) (Enrichment, error) {
	var loose struct {
		Title            string          `json:"title"`
		Summary          string          `json:"summary"`
		Tags             json.RawMessage `json:"tags"`
		Category         string          `json:"category"`
		AtomicStatements json.RawMessage `json:"atomic_statements"`
	}
	if err := json.Unmarshal([]byte(candidate), &loose); err != nil {
		return Enrichment{}, err
	}

	enrichment := Enrichment{
		Title:    strings.TrimSpace(loose.Title),
		Summary:  strings.TrimSpace(loose.Summary),
		Category: strings.TrimSpace(loose.Category),
	}

	if len(loose.Tags) > 0 {
		var tags []string
		if err := json.Unmarshal(loose.Tags, &tags); err == nil {
			enrichment.Tags = cleanTags(tags)
		}
	}

	if len(loose.AtomicStatements) > 0 {
		var statements []Statement
		if err := json.Unmarshal(loose.AtomicStatements, &statements); err == nil {
			enrichment.AtomicStatements = cleanStatements(statements)
		}
	}

	return enrichment, nil
}

func cleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		cleaned = append(cleaned, normalized)
	}
	return cleaned
}

func cleanStatements(statements []Statement) []Statement {
	cleaned := make([]Statement, 0, len(statements))
	for _, statement := range statements {
		statement.Text = strings.TrimSpace(statement.Text)
		if statement.Text == "" {
			continue
		}
		statement.Type = strings.TrimSpace(strings.ToLower(statement.Type))
		if statement.Type == "" {
			statement.Type = "fact"
		}
		cleaned = append(cleaned, statement)
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Order < cleaned[j].Order
	})
	return cleaned
}

func stripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		firstLine := strings.TrimSpace(text[:newline])
		if firstLine == "" || isFenceLanguage(firstLine) {
			text = text[newline+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func isFenceLanguage(line string) bool {
	switch strings.ToLower(line) {
	case "json", "javascript", "js":
		return true
	default:
		return false
	}
}

func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
