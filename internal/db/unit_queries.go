package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// UnitInsert holds the fields of a context unit ready for persistence.
type UnitInsert struct {
	CompanyID        string
	SourceType       string
	Source           string
	ResourceID       *int64
	Title            string
	Summary          string
	Tags             []string
	Category         string
	AtomicStatements json.RawMessage
	Language         string
	MessageID        *string
	SourceMetadata   json.RawMessage
	RawText          string
	Embedding        *string
	EmbeddingModel   *string
}

// InsertUnit persists one enriched context unit and returns its id.
func (p *Pool) InsertUnit(ctx context.Context, unit UnitInsert, now time.Time) (int64, string, error) {
	tags := unit.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, "", fmt.Errorf("marshal unit tags: %w", err)
	}

	statements := unit.AtomicStatements
	if len(statements) == 0 {
		statements = json.RawMessage("[]")
	}
	metadata := unit.SourceMetadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	category := unit.Category
	if category == "" {
		category = "general"
	}
	language := unit.Language
	if language == "" {
		language = "und"
	}

	const q = `
INSERT INTO drift.context_units (
	company_id,
	source_type,
	source,
	resource_id,
	title,
	summary,
	tags,
	category,
	atomic_statements,
	language,
	message_id,
	source_metadata,
	raw_text,
	embedding,
	embedding_model,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9::jsonb, $10, $11, $12::jsonb, $13, $14::vector, $15, $16, $16)
RETURNING unit_id, unit_uuid::text
`
	var unitID int64
	var unitUUID string
	err = p.QueryRow(
		ctx,
		q,
		unit.CompanyID,
		unit.SourceType,
		unit.Source,
		unit.ResourceID,
		unit.Title,
		unit.Summary,
		string(tagsJSON),
		category,
		string(statements),
		language,
		unit.MessageID,
		string(metadata),
		unit.RawText,
		unit.Embedding,
		unit.EmbeddingModel,
		now,
	).Scan(&unitID, &unitUUID)
	if err != nil {
		return 0, "", fmt.Errorf("insert context unit: %w", err)
	}
	return unitID, unitUUID, nil
}

// FindUnitByMessageID looks up a prior unit by the globally unique email
// message identifier, scoped to company and source.
func (p *Pool) FindUnitByMessageID(ctx context.Context, companyID, source, messageID string) (int64, bool, error) {
	const q = `
SELECT unit_id
FROM drift.context_units
WHERE company_id = $1
  AND source = $2
  AND message_id = $3
  AND deleted_at IS NULL
ORDER BY unit_id ASC
LIMIT 1
`
	var unitID int64
	err := p.QueryRow(ctx, q, companyID, source, messageID).Scan(&unitID)
	if err != nil {
		if IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("find unit by message_id: %w", err)
	}
	return unitID, true, nil
}

// FindUnitByTitleSince looks up a prior unit with an exact title match
// created on or after the cutoff, scoped to company and source.
func (p *Pool) FindUnitByTitleSince(ctx context.Context, companyID, source, title string, since time.Time) (int64, bool, error) {
	const q = `
SELECT unit_id
FROM drift.context_units
WHERE company_id = $1
  AND source = $2
  AND title = $3
  AND created_at >= $4
  AND deleted_at IS NULL
ORDER BY created_at DESC, unit_id DESC
LIMIT 1
`
	var unitID int64
	err := p.QueryRow(ctx, q, companyID, source, title, since).Scan(&unitID)
	if err != nil {
		if IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("find unit by title window: %w", err)
	}
	return unitID, true, nil
}

// FindNearDuplicateUnit runs the persistence-time duplicate check: the
// nearest stored embedding within the company scope, accepted when its
// cosine similarity meets the threshold.
func (p *Pool) FindNearDuplicateUnit(ctx context.Context, embeddingLiteral, companyID string, threshold float64) (int64, bool, error) {
	const q = `
SELECT
	unit_id,
	(1 - (embedding <=> $1::vector))::DOUBLE PRECISION AS cosine
FROM drift.context_units
WHERE company_id = $2
  AND embedding IS NOT NULL
  AND deleted_at IS NULL
ORDER BY embedding <=> $1::vector ASC
LIMIT 1
`
	var unitID int64
	var cosine float64
	err := p.QueryRow(ctx, q, embeddingLiteral, companyID).Scan(&unitID, &cosine)
	if err != nil {
		if IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query near-duplicate unit: %w", err)
	}
	if cosine < threshold {
		return 0, false, nil
	}
	return unitID, true, nil
}

// PendingEmbeddingUnit is a context unit missing its embedding.
type PendingEmbeddingUnit struct {
	UnitID  int64
	Title   string
	Summary string
	RawText string
}

// SelectUnitsMissingEmbedding returns units eligible for embedding
// backfill, oldest first.
func (p *Pool) SelectUnitsMissingEmbedding(ctx context.Context, limit int) ([]PendingEmbeddingUnit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT unit_id, title, summary, raw_text
FROM drift.context_units
WHERE embedding IS NULL
  AND deleted_at IS NULL
ORDER BY unit_id ASC
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query units missing embedding: %w", err)
	}
	defer rows.Close()

	units := make([]PendingEmbeddingUnit, 0, limit)
	for rows.Next() {
		var unit PendingEmbeddingUnit
		if err := rows.Scan(&unit.UnitID, &unit.Title, &unit.Summary, &unit.RawText); err != nil {
			return nil, fmt.Errorf("scan unit missing embedding: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units missing embedding: %w", err)
	}
	return units, nil
}

// SetUnitEmbedding backfills the embedding of one unit. Only units still
// missing an embedding are touched; the unit is otherwise immutable.
func (p *Pool) SetUnitEmbedding(ctx context.Context, unitID int64, embeddingLiteral, modelName string, now time.Time) (bool, error) {
	const q = `
UPDATE drift.context_units
SET
	embedding = $2::vector,
	embedding_model = $3,
	updated_at = $4
WHERE unit_id = $1
  AND embedding IS NULL
  AND deleted_at IS NULL
`
	tag, err := p.Exec(ctx, q, unitID, embeddingLiteral, modelName, now)
	if err != nil {
		return false, fmt.Errorf("set unit embedding unit_id=%d: %w", unitID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UnitListItem is used by the units CLI command and the HTTP API.
type UnitListItem struct {
	UnitID     int64     `json:"unit_id"`
	UnitUUID   string    `json:"unit_uuid"`
	CompanyID  string    `json:"company_id"`
	SourceType string    `json:"source_type"`
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Language   string    `json:"language"`
	HasVector  bool      `json:"has_embedding"`
	CreatedAt  time.Time `json:"created_at"`
}

// UnitListOptions controls unit listing queries.
type UnitListOptions struct {
	CompanyID  string
	SourceType string
	From       time.Time
	To         time.Time
	Limit      int
}

// ListUnits lists context units in a UTC created_at window.
func (p *Pool) ListUnits(ctx context.Context, opts UnitListOptions) ([]UnitListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to")
	}

	const q = `
SELECT
	u.unit_id,
	u.unit_uuid::text,
	u.company_id,
	u.source_type,
	u.source,
	u.title,
	u.category,
	u.language,
	u.embedding IS NOT NULL,
	u.created_at
FROM drift.context_units u
WHERE u.created_at >= $1
  AND u.created_at < $2
  AND ($3 = '' OR u.company_id = $3)
  AND ($4 = '' OR u.source_type = $4)
  AND u.deleted_at IS NULL
ORDER BY u.created_at DESC, u.unit_id DESC
LIMIT $5
`
	rows, err := p.Query(ctx, q, from, to, opts.CompanyID, opts.SourceType, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	items := make([]UnitListItem, 0, opts.Limit)
	for rows.Next() {
		var row UnitListItem
		if err := rows.Scan(
			&row.UnitID,
			&row.UnitUUID,
			&row.CompanyID,
			&row.SourceType,
			&row.Source,
			&row.Title,
			&row.Category,
			&row.Language,
			&row.HasVector,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan unit row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit rows: %w", err)
	}
	return items, nil
}
