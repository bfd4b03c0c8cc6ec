package db

import (
	"context"
	"fmt"
	"time"
)

// StatsSourceTypeCount stores per-source-type unit counts.
type StatsSourceTypeCount struct {
	SourceType string `json:"source_type"`
	Units      int64  `json:"units"`
	Embedded   int64  `json:"embedded"`
}

// StatsTotals stores totals across the store.
type StatsTotals struct {
	Resources       int64 `json:"resources"`
	ActiveResources int64 `json:"active_resources"`
	Units           int64 `json:"units"`
	CheckEvents     int64 `json:"check_events"`
}

// IngestThroughput stores daily counters.
type IngestThroughput struct {
	UnitsCreatedToday  int64 `json:"units_created_today"`
	ChecksRunToday     int64 `json:"checks_run_today"`
	PendingNotEmbedded int64 `json:"pending_not_embedded"`
}

// StoreStats is the read model returned by the stats command.
type StoreStats struct {
	Day         string                 `json:"day"`
	SourceTypes []StatsSourceTypeCount `json:"source_types"`
	Totals      StatsTotals            `json:"totals"`
	Throughput  IngestThroughput       `json:"throughput"`
}

// QueryStoreStats returns per-source-type and total counts plus daily
// throughput counters.
func (p *Pool) QueryStoreStats(ctx context.Context, dayStart, dayEnd time.Time) (*StoreStats, error) {
	startUTC := dayStart.UTC()
	endUTC := dayEnd.UTC()
	if !startUTC.Before(endUTC) {
		return nil, fmt.Errorf("dayStart must be before dayEnd")
	}

	stats := &StoreStats{
		Day:         startUTC.Format("2006-01-02"),
		SourceTypes: make([]StatsSourceTypeCount, 0, 4),
	}

	const countsQuery = `
SELECT
	u.source_type,
	COUNT(*)::BIGINT AS units,
	COUNT(u.embedding)::BIGINT AS embedded
FROM drift.context_units u
WHERE u.deleted_at IS NULL
GROUP BY u.source_type
ORDER BY u.source_type
`
	rows, err := p.Query(ctx, countsQuery)
	if err != nil {
		return nil, fmt.Errorf("query source type counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row StatsSourceTypeCount
		if err := rows.Scan(&row.SourceType, &row.Units, &row.Embedded); err != nil {
			return nil, fmt.Errorf("scan source type count: %w", err)
		}
		stats.SourceTypes = append(stats.SourceTypes, row)
		stats.Totals.Units += row.Units
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source type counts: %w", err)
	}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM drift.monitored_resources WHERE deleted_at IS NULL),
	(SELECT COUNT(*) FROM drift.monitored_resources WHERE deleted_at IS NULL AND status = 'active'),
	(SELECT COUNT(*) FROM drift.check_events)
`
	if err := p.QueryRow(ctx, totalsQuery).Scan(
		&stats.Totals.Resources,
		&stats.Totals.ActiveResources,
		&stats.Totals.CheckEvents,
	); err != nil {
		return nil, fmt.Errorf("query store totals: %w", err)
	}

	const throughputQuery = `
SELECT
	(SELECT COUNT(*) FROM drift.context_units WHERE deleted_at IS NULL AND created_at >= $1 AND created_at < $2),
	(SELECT COUNT(*) FROM drift.check_events WHERE created_at >= $1 AND created_at < $2),
	(SELECT COUNT(*) FROM drift.context_units WHERE deleted_at IS NULL AND embedding IS NULL)
`
	if err := p.QueryRow(ctx, throughputQuery, startUTC, endUTC).Scan(
		&stats.Throughput.UnitsCreatedToday,
		&stats.Throughput.ChecksRunToday,
		&stats.Throughput.PendingNotEmbedded,
	); err != nil {
		return nil, fmt.Errorf("query throughput counters: %w", err)
	}

	return stats, nil
}
