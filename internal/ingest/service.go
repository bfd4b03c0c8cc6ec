// Package ingest runs the submission pipeline: novelty verification,
// enrichment, embedding, the persistence-time near-duplicate check, and the
// final context unit insert.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/driftwatch/internal/db"
	"horse.fit/driftwatch/internal/embedding"
	"horse.fit/driftwatch/internal/enrich"
	"horse.fit/driftwatch/internal/globaltime"
	"horse.fit/driftwatch/internal/langdetect"
	"horse.fit/driftwatch/internal/normalize"
	"horse.fit/driftwatch/internal/novelty"
)

// embedInputLimit caps the text sent to the embedding provider. Normalized
// article bodies can run long; the head carries the signal.
const embedInputLimit = 8000

// Submission is one incoming content item from any source.
type Submission struct {
	CompanyID  string
	SourceType novelty.SourceType
	Source     string
	Title      string
	Body       string
	MessageID  string
	Prefilled  map[string]any
	Metadata   map[string]any
	ResourceID *int64
}

// Outcome reports what happened to a submission. A rejected duplicate is a
// successful outcome with Stored=false, never an error.
type Outcome struct {
	Stored       bool
	UnitID       int64
	UnitUUID     string
	Reason       string
	DuplicateRef *int64
	// EmbeddingLiteral is the pgvector literal stored on the unit, when one
	// was computed.
	EmbeddingLiteral *string
}

// Service wires the pipeline collaborators together.
type Service struct {
	pool             *db.Pool
	verifier         *novelty.Verifier
	gateway          enrich.Gateway
	embedder         embedding.Provider
	nearDupThreshold float64
	logger           zerolog.Logger
}

func NewService(
	pool *db.Pool,
	verifier *novelty.Verifier,
	gateway enrich.Gateway,
	embedder embedding.Provider,
	nearDupThreshold float64,
	logger zerolog.Logger,
) *Service {
	return &Service{
		pool:             pool,
		verifier:         verifier,
		gateway:          gateway,
		embedder:         embedder,
		nearDupThreshold: nearDupThreshold,
		logger:           logger,
	}
}

// Submit verifies and, when novel, stores one submission.
func (s *Service) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	companyID := strings.TrimSpace(sub.CompanyID)
	if companyID == "" {
		return Outcome{}, fmt.Errorf("company id is required")
	}
	source := strings.TrimSpace(sub.Source)
	if source == "" {
		return Outcome{}, fmt.Errorf("source is required")
	}

	text, usedFallback := normalize.Content(sub.Body)
	if usedFallback {
		s.logger.Debug().Str("source", source).Msg("html normalization fell back to tag stripping")
	}
	if text == "" {
		text = strings.TrimSpace(sub.Title)
	}
	if text == "" {
		return Outcome{}, fmt.Errorf("submission has no usable content")
	}

	verdict := s.verifier.VerifyNovel(ctx, sub.SourceType, novelty.Payload{
		Source:    source,
		MessageID: sub.MessageID,
		Title:     sub.Title,
	}, companyID)
	if !verdict.IsNovel {
		s.logger.Info().
			Str("company_id", companyID).
			Str("source", source).
			Str("reason", verdict.Reason).
			Msg("submission rejected as duplicate")
		return Outcome{Stored: false, Reason: verdict.Reason, DuplicateRef: verdict.DuplicateRef}, nil
	}

	sub.CompanyID = companyID
	sub.Source = source
	return s.Store(ctx, sub, text, nil)
}

// Store enriches, embeds, near-duplicate-checks and persists one already
// verified item. A precomputed embedding (from the change classifier) is
// reused instead of a second provider call.
func (s *Service) Store(ctx context.Context, sub Submission, text string, precomputed []float64) (Outcome, error) {
	enrichment := s.enrichText(ctx, sub, text)

	vector := precomputed
	if len(vector) == 0 && s.embedder != nil {
		input := embedInput(enrichment, text)
		embedded, err := s.embedder.Embed(ctx, input)
		if err != nil {
			// Store without the vector; the backfill command picks it up.
			s.logger.Warn().Err(err).Str("source", sub.Source).Msg("embedding failed; storing unit without vector")
		} else {
			vector = embedded
		}
	}

	var embeddingLiteral *string
	var embeddingModel *string
	if len(vector) > 0 && s.embedder != nil {
		literal, err := embedding.ToVectorLiteral(vector, s.embedder.Dimensions())
		if err != nil {
			s.logger.Warn().Err(err).Str("source", sub.Source).Msg("embedding has wrong shape; storing unit without vector")
		} else {
			if dup, outcome := s.nearDuplicate(ctx, sub.CompanyID, literal); dup {
				return outcome, nil
			}
			model := s.embedder.Name()
			embeddingLiteral = &literal
			embeddingModel = &model
		}
	}

	statements, err := json.Marshal(enrichment.AtomicStatements)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal atomic statements: %w", err)
	}
	metadata := json.RawMessage("{}")
	if len(sub.Metadata) > 0 {
		encoded, err := json.Marshal(sub.Metadata)
		if err != nil {
			return Outcome{}, fmt.Errorf("marshal source metadata: %w", err)
		}
		metadata = encoded
	}

	var messageID *string
	if trimmed := strings.TrimSpace(sub.MessageID); trimmed != "" {
		messageID = &trimmed
	}

	language := ""
	if raw, ok := sub.Prefilled["language"].(string); ok {
		language = langdetect.NormalizeCode(raw)
	}
	if language == "" {
		language = langdetect.DetectISO6391(text)
	}
	if language == "" {
		language = "und"
	}

	now := globaltime.UTC()
	unitID, unitUUID, err := s.pool.InsertUnit(ctx, db.UnitInsert{
		CompanyID:        sub.CompanyID,
		SourceType:       string(sub.SourceType),
		Source:           sub.Source,
		ResourceID:       sub.ResourceID,
		Title:            enrichment.Title,
		Summary:          enrichment.Summary,
		Tags:             enrichment.Tags,
		Category:         enrichment.Category,
		AtomicStatements: statements,
		Language:         language,
		MessageID:        messageID,
		SourceMetadata:   metadata,
		RawText:          text,
		Embedding:        embeddingLiteral,
		EmbeddingModel:   embeddingModel,
	}, now)
	if err != nil {
		return Outcome{}, err
	}

	s.logger.Info().
		Int64("unit_id", unitID).
		Str("company_id", sub.CompanyID).
		Str("source_type", string(sub.SourceType)).
		Str("source", sub.Source).
		Bool("embedded", embeddingLiteral != nil).
		Msg("context unit stored")

	return Outcome{
		Stored:           true,
		UnitID:           unitID,
		UnitUUID:         unitUUID,
		Reason:           "stored",
		EmbeddingLiteral: embeddingLiteral,
	}, nil
}

// enrichText calls the gateway and degrades to prefilled-plus-defaults on
// failure so a flaky provider never loses content.
func (s *Service) enrichText(ctx context.Context, sub Submission, text string) enrich.Enrichment {
	prefilled := sub.Prefilled
	if prefilled == nil {
		prefilled = map[string]any{}
	}
	if _, ok := prefilled["title"]; !ok && strings.TrimSpace(sub.Title) != "" {
		prefilled["title"] = strings.TrimSpace(sub.Title)
	}

	if s.gateway == nil {
		return enrich.ApplyDefaults(enrich.ApplyPrefilled(enrich.Enrichment{}, prefilled))
	}

	enrichment, err := s.gateway.Enrich(ctx, text, prefilled)
	if err != nil {
		s.logger.Warn().Err(err).Str("source", sub.Source).Msg("enrichment failed; storing with prefilled fields only")
		enrichment = enrich.ApplyPrefilled(enrich.Enrichment{}, prefilled)
	}
	enrichment = enrich.ApplyDefaults(enrichment)
	if enrichment.Title == "" {
		enrichment.Title = fallbackTitle(sub.Title, text)
	}
	if enrichment.Summary == "" {
		enrichment.Summary = fallbackSummary(text)
	}
	return enrichment
}

// nearDuplicate runs the persistence-time embedding check. Lookup failures
// fail open to storing.
func (s *Service) nearDuplicate(ctx context.Context, companyID, embeddingLiteral string) (bool, Outcome) {
	unitID, found, err := s.pool.FindNearDuplicateUnit(ctx, embeddingLiteral, companyID, s.nearDupThreshold)
	if err != nil {
		s.logger.Warn().Err(err).Msg("near-duplicate lookup failed; storing anyway")
		return false, Outcome{}
	}
	if !found {
		return false, Outcome{}
	}
	s.logger.Info().
		Int64("duplicate_of", unitID).
		Str("company_id", companyID).
		Msg("submission rejected as embedding near-duplicate")
	return true, Outcome{
		Stored:       false,
		Reason:       "near-duplicate of stored unit",
		DuplicateRef: &unitID,
	}
}

func embedInput(enrichment enrich.Enrichment, text string) string {
	parts := make([]string, 0, 3)
	if enrichment.Title != "" {
		parts = append(parts, enrichment.Title)
	}
	if enrichment.Summary != "" {
		parts = append(parts, enrichment.Summary)
	}
	parts = append(parts, text)
	joined := strings.Join(parts, "\n\n")

	runes := []rune(joined)
	if len(runes) > embedInputLimit {
		joined = string(runes[:embedInputLimit])
	}
	return joined
}

func fallbackTitle(title, text string) string {
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		return trimmed
	}
	fields := strings.Fields(text)
	if len(fields) > 12 {
		fields = fields[:12]
	}
	return strings.Join(fields, " ")
}

func fallbackSummary(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > 280 {
		return string(runes[:280])
	}
	return string(runes)
}
