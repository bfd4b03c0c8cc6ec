package db

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// ResourceRow is the working view of a monitored resource used by the
// scraper and verifier.
type ResourceRow struct {
	ResourceID          int64
	ResourceUUID        string
	CompanyID           string
	Source              string
	URL                 string
	Kind                string
	ExactHash           *string
	Simhash             *int64
	LastEmbedding       *string
	SeenItemTitles      []string
	LastCheckedAt       *time.Time
	LastChangedAt       *time.Time
	ConsecutiveFailures int
	Status              string
}

// URLKey hashes a canonical URL for the unique resource lookup key.
func URLKey(url string) []byte {
	digest := sha256.Sum256([]byte(url))
	return digest[:]
}

// GetResourceByURL loads one active-or-suspended resource by canonical URL.
func (p *Pool) GetResourceByURL(ctx context.Context, url string) (ResourceRow, bool, error) {
	const q = `
SELECT
	r.resource_id,
	r.resource_uuid::text,
	r.company_id,
	r.source,
	r.url,
	r.kind,
	r.exact_hash,
	r.simhash,
	r.last_embedding::text,
	r.seen_item_titles,
	r.last_checked_at,
	r.last_changed_at,
	r.consecutive_failures,
	r.status
FROM drift.monitored_resources r
WHERE r.url_hash = $1
  AND r.deleted_at IS NULL
LIMIT 1
`
	var row ResourceRow
	var seenTitles json.RawMessage
	err := p.QueryRow(ctx, q, URLKey(url)).Scan(
		&row.ResourceID,
		&row.ResourceUUID,
		&row.CompanyID,
		&row.Source,
		&row.URL,
		&row.Kind,
		&row.ExactHash,
		&row.Simhash,
		&row.LastEmbedding,
		&seenTitles,
		&row.LastCheckedAt,
		&row.LastChangedAt,
		&row.ConsecutiveFailures,
		&row.Status,
	)
	if err != nil {
		if IsNoRows(err) {
			return ResourceRow{}, false, nil
		}
		return ResourceRow{}, false, fmt.Errorf("get resource by url: %w", err)
	}

	if len(seenTitles) > 0 {
		if err := json.Unmarshal(seenTitles, &row.SeenItemTitles); err != nil {
			return ResourceRow{}, false, fmt.Errorf("decode seen_item_titles resource_id=%d: %w", row.ResourceID, err)
		}
	}
	return row, true, nil
}

// UpsertResourceParams creates or refreshes a monitored resource shell.
type UpsertResourceParams struct {
	CompanyID string
	Source    string
	URL       string
	Kind      string
}

// UpsertResource creates the resource on first observation of a URL, or
// returns the existing row untouched.
func (p *Pool) UpsertResource(ctx context.Context, params UpsertResourceParams, now time.Time) (ResourceRow, error) {
	kind := params.Kind
	if kind == "" {
		kind = "article"
	}
	source := params.Source
	if source == "" {
		source = "web"
	}

	const q = `
INSERT INTO drift.monitored_resources (
	company_id,
	source,
	url,
	url_hash,
	kind,
	status,
	consecutive_failures,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, 'active', 0, $6, $6)
ON CONFLICT (url_hash) DO NOTHING
`
	if _, err := p.Exec(ctx, q, params.CompanyID, source, params.URL, URLKey(params.URL), kind, now); err != nil {
		return ResourceRow{}, fmt.Errorf("upsert resource url=%q: %w", params.URL, err)
	}

	row, found, err := p.GetResourceByURL(ctx, params.URL)
	if err != nil {
		return ResourceRow{}, err
	}
	if !found {
		return ResourceRow{}, fmt.Errorf("resource url=%q not found after upsert", params.URL)
	}
	return row, nil
}

// FingerprintUpdate writes back the outcome of one completed check. The
// embedding is only replaced when provided; a nil embedding leaves the
// stored one in place.
type FingerprintUpdate struct {
	ResourceID int64
	ExactHash  string
	Simhash    *int64
	Embedding  *string
	Changed    bool
	CheckedAt  time.Time
}

// UpdateResourceFingerprint refreshes the stored fingerprint in a single
// UPDATE so concurrent writers cannot interleave partial state.
func (p *Pool) UpdateResourceFingerprint(ctx context.Context, update FingerprintUpdate) error {
	const q = `
UPDATE drift.monitored_resources
SET
	exact_hash = $2,
	simhash = $3,
	last_embedding = COALESCE($4::vector, last_embedding),
	last_checked_at = $5,
	last_changed_at = CASE WHEN $6 THEN $5 ELSE last_changed_at END,
	consecutive_failures = 0,
	updated_at = $5
WHERE resource_id = $1
  AND deleted_at IS NULL
`
	tag, err := p.Exec(ctx, q, update.ResourceID, update.ExactHash, update.Simhash, update.Embedding, update.CheckedAt, update.Changed)
	if err != nil {
		return fmt.Errorf("update resource fingerprint resource_id=%d: %w", update.ResourceID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("resource_id=%d not found for fingerprint update", update.ResourceID)
	}
	return nil
}

// UpdateResourceSeenTitles replaces the stored title set of a multi-item
// index page.
func (p *Pool) UpdateResourceSeenTitles(ctx context.Context, resourceID int64, titles []string, now time.Time) error {
	payload, err := json.Marshal(titles)
	if err != nil {
		return fmt.Errorf("marshal seen titles resource_id=%d: %w", resourceID, err)
	}

	const q = `
UPDATE drift.monitored_resources
SET
	seen_item_titles = $2::jsonb,
	last_checked_at = $3,
	consecutive_failures = 0,
	updated_at = $3
WHERE resource_id = $1
  AND deleted_at IS NULL
`
	if _, err := p.Exec(ctx, q, resourceID, string(payload), now); err != nil {
		return fmt.Errorf("update seen titles resource_id=%d: %w", resourceID, err)
	}
	return nil
}

// RecordResourceFailure bumps the consecutive failure counter without
// touching the stored fingerprint, and returns the new count.
func (p *Pool) RecordResourceFailure(ctx context.Context, resourceID int64, now time.Time) (int, error) {
	const q = `
UPDATE drift.monitored_resources
SET
	consecutive_failures = consecutive_failures + 1,
	last_checked_at = $2,
	updated_at = $2
WHERE resource_id = $1
  AND deleted_at IS NULL
RETURNING consecutive_failures
`
	var failures int
	if err := p.QueryRow(ctx, q, resourceID, now).Scan(&failures); err != nil {
		return 0, fmt.Errorf("record resource failure resource_id=%d: %w", resourceID, err)
	}
	return failures, nil
}

// SetResourceStatus moves a resource between active/suspended/inactive.
// Reactivating also clears the failure counter.
func (p *Pool) SetResourceStatus(ctx context.Context, resourceID int64, status string, now time.Time) error {
	const q = `
UPDATE drift.monitored_resources
SET
	status = $2,
	consecutive_failures = CASE WHEN $2 = 'active' THEN 0 ELSE consecutive_failures END,
	updated_at = $3
WHERE resource_id = $1
  AND deleted_at IS NULL
`
	tag, err := p.Exec(ctx, q, resourceID, status, now)
	if err != nil {
		return fmt.Errorf("set resource status resource_id=%d: %w", resourceID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("resource_id=%d not found for status update", resourceID)
	}
	return nil
}

// ListActiveResources returns active resources ordered by staleness, the
// least recently checked first.
func (p *Pool) ListActiveResources(ctx context.Context, limit int) ([]ResourceRow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	r.resource_id,
	r.resource_uuid::text,
	r.company_id,
	r.source,
	r.url,
	r.kind,
	r.exact_hash,
	r.simhash,
	r.last_embedding::text,
	r.seen_item_titles,
	r.last_checked_at,
	r.last_changed_at,
	r.consecutive_failures,
	r.status
FROM drift.monitored_resources r
WHERE r.status = 'active'
  AND r.deleted_at IS NULL
ORDER BY r.last_checked_at ASC NULLS FIRST, r.resource_id ASC
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query active resources: %w", err)
	}
	defer rows.Close()

	resources := make([]ResourceRow, 0, limit)
	for rows.Next() {
		var row ResourceRow
		var seenTitles json.RawMessage
		if err := rows.Scan(
			&row.ResourceID,
			&row.ResourceUUID,
			&row.CompanyID,
			&row.Source,
			&row.URL,
			&row.Kind,
			&row.ExactHash,
			&row.Simhash,
			&row.LastEmbedding,
			&seenTitles,
			&row.LastCheckedAt,
			&row.LastChangedAt,
			&row.ConsecutiveFailures,
			&row.Status,
		); err != nil {
			return nil, fmt.Errorf("scan active resource: %w", err)
		}
		if len(seenTitles) > 0 {
			if err := json.Unmarshal(seenTitles, &row.SeenItemTitles); err != nil {
				return nil, fmt.Errorf("decode seen_item_titles resource_id=%d: %w", row.ResourceID, err)
			}
		}
		resources = append(resources, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active resources: %w", err)
	}
	return resources, nil
}
