package db

import (
	"context"
	"fmt"
	"time"
)

// CheckEventRecord is one classification outcome to be written to the
// audit ledger.
type CheckEventRecord struct {
	ResourceID         int64
	ChangeType         string
	DetectionTier      int
	SimilarityScore    *float64
	RequiresProcessing bool
	UnitID             *int64
	Outcome            string
	CreatedAt          time.Time
}

// InsertCheckEvent appends one row to drift.check_events.
func (p *Pool) InsertCheckEvent(ctx context.Context, record CheckEventRecord) error {
	const q = `
INSERT INTO drift.check_events (
	resource_id,
	change_type,
	detection_tier,
	similarity_score,
	requires_processing,
	unit_id,
	outcome,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := p.Exec(
		ctx,
		q,
		record.ResourceID,
		record.ChangeType,
		record.DetectionTier,
		record.SimilarityScore,
		record.RequiresProcessing,
		record.UnitID,
		record.Outcome,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check_event resource_id=%d: %w", record.ResourceID, err)
	}
	return nil
}

// ResourceCheckStats summarizes recent check outcomes for one resource.
type ResourceCheckStats struct {
	ResourceID  int64            `json:"resource_id"`
	TotalChecks int64            `json:"total_checks"`
	ByChange    map[string]int64 `json:"by_change_type"`
	LastCheckAt *time.Time       `json:"last_check_at,omitempty"`
}

// GetResourceCheckStats aggregates the check ledger for one resource.
func (p *Pool) GetResourceCheckStats(ctx context.Context, resourceID int64) (ResourceCheckStats, error) {
	const q = `
SELECT change_type, COUNT(*)::bigint, MAX(created_at)
FROM drift.check_events
WHERE resource_id = $1
GROUP BY change_type
`
	rows, err := p.Query(ctx, q, resourceID)
	if err != nil {
		return ResourceCheckStats{}, fmt.Errorf("query check stats resource_id=%d: %w", resourceID, err)
	}
	defer rows.Close()

	stats := ResourceCheckStats{
		ResourceID: resourceID,
		ByChange:   map[string]int64{},
	}
	for rows.Next() {
		var changeType string
		var count int64
		var latest time.Time
		if err := rows.Scan(&changeType, &count, &latest); err != nil {
			return ResourceCheckStats{}, fmt.Errorf("scan check stats row: %w", err)
		}
		stats.ByChange[changeType] = count
		stats.TotalChecks += count
		if stats.LastCheckAt == nil || latest.After(*stats.LastCheckAt) {
			latestCopy := latest
			stats.LastCheckAt = &latestCopy
		}
	}
	if err := rows.Err(); err != nil {
		return ResourceCheckStats{}, fmt.Errorf("iterate check stats rows: %w", err)
	}
	return stats, nil
}
