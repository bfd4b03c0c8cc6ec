package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"
)

const (
	DefaultAnthropicModel   = "claude-3-5-haiku-latest"
	DefaultAnthropicTimeout = 60 * time.Second
	anthropicMaxTokens      = 2048
	maxEnrichmentInputRunes = 12000
)

// AnthropicOptions configures the Anthropic enrichment gateway.
type AnthropicOptions struct {
	Model   string
	Timeout time.Duration
}

// AnthropicGateway enriches text through the Anthropic Messages API. The
// client reads its API key from the standard SDK environment variables.
type AnthropicGateway struct {
	client anthropic.Client
	opts   AnthropicOptions
	logger zerolog.Logger
}

func NewAnthropicGateway(opts AnthropicOptions, logger zerolog.Logger) *AnthropicGateway {
	normalized := opts
	if strings.TrimSpace(normalized.Model) == "" {
		normalized.Model = DefaultAnthropicModel
	}
	if normalized.Timeout <= 0 {
		normalized.Timeout = DefaultAnthropicTimeout
	}
	return &AnthropicGateway{
		client: anthropic.NewClient(),
		opts:   normalized,
		logger: logger,
	}
}

func (g *AnthropicGateway) Name() string { return "anthropic" }

func (g *AnthropicGateway) Enrich(ctx context.Context, text string, prefilled map[string]any) (Enrichment, error) {
	if g == nil {
		return ApplyDefaults(Enrichment{}), fmt.Errorf("anthropic gateway is not initialized")
	}

	input := strings.TrimSpace(text)
	if input == "" {
		return ApplyDefaults(Enrichment{}), fmt.Errorf("enrichment input is empty")
	}
	if runes := []rune(input); len(runes) > maxEnrichmentInputRunes {
		input = string(runes[:maxEnrichmentInputRunes])
	}

	requestCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	response, err := g.client.Messages.New(requestCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.opts.Model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildEnrichmentPrompt(input, prefilled))),
		},
	})
	if err != nil {
		return ApplyDefaults(Enrichment{}), fmt.Errorf("anthropic enrichment request failed: %w", err)
	}

	var responseText strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText.WriteString(block.Text)
		}
	}

	enrichment, parseErr := ParseResponse(responseText.String())
	if parseErr != nil {
		// Malformed upstream output is degraded, never propagated: the
		// partial object with safe defaults is still persistable.
		g.logger.Warn().Err(parseErr).Msg("enrichment response malformed; using partial result")
	}

	return ApplyDefaults(ApplyPrefilled(enrichment, prefilled)), nil
}

func buildEnrichmentPrompt(text string, prefilled map[string]any) string {
	var b strings.Builder
	b.WriteString("Extract structured metadata from the content below. Respond with a single JSON object, no prose, with these fields:\n")
	b.WriteString(`{"title": string, "summary": string (2-3 sentences), "tags": [string], "category": string, "atomic_statements": [{"type": "fact"|"claim"|"quote", "text": string, "order": int, "speaker": string (only for quotes)}]}`)
	b.WriteString("\n\n")

	skip := make([]string, 0, len(prefilled))
	for _, key := range []string{"title", "summary", "tags", "category"} {
		if _, ok := prefilled[key]; ok {
			skip = append(skip, key)
		}
	}
	if len(skip) > 0 {
		b.WriteString("The following fields are already known and will be overwritten by the caller; fill them with empty values: ")
		b.WriteString(strings.Join(skip, ", "))
		b.WriteString("\n\n")
	}

	b.WriteString("Content:\n")
	b.WriteString(text)
	return b.String()
}

// NoopGateway returns an empty enrichment with defaults applied. It keeps
// the pipeline runnable without an LLM backend configured.
type NoopGateway struct{}

func (NoopGateway) Name() string { return "noop" }

func (NoopGateway) Enrich(_ context.Context, _ string, prefilled map[string]any) (Enrichment, error) {
	return ApplyDefaults(ApplyPrefilled(Enrichment{}, prefilled)), nil
}
