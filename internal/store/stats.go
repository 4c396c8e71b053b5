package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Statistics summarizes the filtered slice of the log: totals, per-type and
// per-severity counts, and an hour-aligned timeline.
func (s *Store) Statistics(ctx context.Context, filter model.EventFilter) (model.EventStats, error) {
	if err := filter.Validate(); err != nil {
		return model.EventStats{}, err
	}

	where, args := buildWhere(filter)

	stats := model.EventStats{
		ByType:     make(map[model.EventType]int64),
		BySeverity: make(map[string]int64),
	}

	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM change_events%s`, where), args...,
	).Scan(&stats.TotalEvents)
	if err != nil {
		return model.EventStats{}, fmt.Errorf("statistics: total: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT type, COUNT(*) FROM change_events%s GROUP BY type`, where), args...)
	if err != nil {
		return model.EventStats{}, fmt.Errorf("statistics: by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return model.EventStats{}, fmt.Errorf("statistics: scan type: %w", err)
		}
		stats.ByType[model.EventType(eventType)] = count
	}
	if err := rows.Err(); err != nil {
		return model.EventStats{}, fmt.Errorf("statistics: iterate types: %w", err)
	}

	sevRows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT severity, COUNT(*) FROM change_events%s GROUP BY severity`, where), args...)
	if err != nil {
		return model.EventStats{}, fmt.Errorf("statistics: by severity: %w", err)
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var severity int
		var count int64
		if err := sevRows.Scan(&severity, &count); err != nil {
			return model.EventStats{}, fmt.Errorf("statistics: scan severity: %w", err)
		}
		stats.BySeverity[model.Severity(severity).String()] = count
	}
	if err := sevRows.Err(); err != nil {
		return model.EventStats{}, fmt.Errorf("statistics: iterate severities: %w", err)
	}

	timeline, err := s.timeline(ctx, where, args)
	if err != nil {
		return model.EventStats{}, err
	}
	stats.Timeline = timeline

	return stats, nil
}

// timeline buckets events into hour windows, ordered oldest first.
func (s *Store) timeline(ctx context.Context, where string, args []any) ([]model.TimelineBucket, error) {
	const hourNS = int64(time.Hour)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT (timestamp_ns / %d) AS bucket, COUNT(*)
		FROM change_events%s
		GROUP BY bucket
		ORDER BY bucket ASC
	`, hourNS, where), args...)
	if err != nil {
		return nil, fmt.Errorf("statistics: timeline: %w", err)
	}
	defer rows.Close()

	var buckets []model.TimelineBucket
	for rows.Next() {
		var bucket, count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("statistics: scan bucket: %w", err)
		}
		buckets = append(buckets, model.TimelineBucket{
			Start: time.Unix(0, bucket*hourNS).UTC(),
			Count: count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statistics: iterate buckets: %w", err)
	}

	if buckets == nil {
		buckets = []model.TimelineBucket{}
	}
	return buckets, nil
}
