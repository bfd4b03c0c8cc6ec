// Package enrich turns raw text into structured context-unit fields via an
// LLM backend. The gateway degrades instead of failing: malformed upstream
// responses produce a best-effort partial result with safe empty defaults.
package enrich

import (
	"context"
	"strings"
)

// DefaultCategory is assigned when the backend returns no usable category.
const DefaultCategory = "general"

// Statement is one atomic statement extracted from the text.
type Statement struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Order   int    `json:"order"`
	Speaker string `json:"speaker,omitempty"`
}

// Enrichment is the structured output for one piece of content.
type Enrichment struct {
	Title            string      `json:"title"`
	Summary          string      `json:"summary"`
	Tags             []string    `json:"tags"`
	Category         string      `json:"category"`
	AtomicStatements []Statement `json:"atomic_statements"`
}

// Gateway produces an Enrichment for raw text. Prefilled fields are
// returned unchanged rather than regenerated.
type Gateway interface {
	Enrich(ctx context.Context, text string, prefilled map[string]any) (Enrichment, error)
	Name() string
}

// ApplyDefaults fills missing fields with safe empties so that the fields
// that did parse are never blocked from persistence.
func ApplyDefaults(e Enrichment) Enrichment {
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if strings.TrimSpace(e.Category) == "" {
		e.Category = DefaultCategory
	}
	if e.AtomicStatements == nil {
		e.AtomicStatements = []Statement{}
	}
	return e
}

// ApplyPrefilled overwrites enrichment fields with caller-supplied values.
// Only recognized keys are honored; unknown keys are ignored.
func ApplyPrefilled(e Enrichment, prefilled map[string]any) Enrichment {
	if len(prefilled) == 0 {
		return e
	}

	if v, ok := stringValue(prefilled, "title"); ok {
		e.Title = v
	}
	if v, ok := stringValue(prefilled, "summary"); ok {
		e.Summary = v
	}
	if v, ok := stringValue(prefilled, "category"); ok {
		e.Category = v
	}
	if raw, ok := prefilled["tags"]; ok {
		if tags, ok := stringSlice(raw); ok {
			e.Tags = tags
		}
	}
	return e
}

func stringValue(values map[string]any, key string) (string, bool) {
	raw, ok := values[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok {
		return "", false
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

func stringSlice(raw any) ([]string, bool) {
	switch typed := raw.(type) {
	case []string:
		return typed, true
	case []any:
		values := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				values = append(values, strings.TrimSpace(s))
			}
		}
		return values, true
	default:
		return nil, false
	}
}
