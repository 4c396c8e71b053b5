package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// RetentionPolicy controls the cleanup sweep: per-severity age windows and
// an absolute cap on total events.
type RetentionPolicy struct {
	// MaxAgeDays maps each severity to its retention window in days.
	// Severities absent from the map are retained indefinitely by age.
	MaxAgeDays map[model.Severity]int `yaml:"max_age_days"`
	// MaxEvents caps the total event count; 0 disables the cap.
	// When exceeded, the oldest events are evicted first.
	MaxEvents int64 `yaml:"max_events"`
	// SweepInterval is how often the background retention loop runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultRetentionPolicy keeps noisy events briefly and critical ones for a
// year, capped at 100k events total.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MaxAgeDays: map[model.Severity]int{
			model.SeverityDebug:    7,
			model.SeverityInfo:     30,
			model.SeverityWarning:  60,
			model.SeverityError:    90,
			model.SeverityCritical: 365,
		},
		MaxEvents:     100_000,
		SweepInterval: time.Hour,
	}
}

// Cleanup applies the retention policy and returns the number of events
// deleted. Age windows are applied per severity first, then the absolute
// cap evicts oldest-first.
func (s *Store) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return s.CleanupAt(ctx, policy, time.Now())
}

// CleanupAt is Cleanup with an explicit reference time, for tests.
func (s *Store) CleanupAt(ctx context.Context, policy RetentionPolicy, now time.Time) (int64, error) {
	var deleted int64

	for severity, days := range policy.MaxAgeDays {
		if days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -days).UnixNano()
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM change_events WHERE severity = ? AND timestamp_ns < ?
		`, int(severity), cutoff)
		if err != nil {
			return deleted, fmt.Errorf("cleanup: severity %s: %w", severity, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("cleanup: rows affected: %w", err)
		}
		deleted += n
	}

	if policy.MaxEvents > 0 {
		var total int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_events`).Scan(&total); err != nil {
			return deleted, fmt.Errorf("cleanup: count: %w", err)
		}
		if excess := total - policy.MaxEvents; excess > 0 {
			result, err := s.db.ExecContext(ctx, `
				DELETE FROM change_events WHERE seq IN (
					SELECT seq FROM change_events ORDER BY seq ASC LIMIT ?
				)
			`, excess)
			if err != nil {
				return deleted, fmt.Errorf("cleanup: cap eviction: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return deleted, fmt.Errorf("cleanup: rows affected: %w", err)
			}
			deleted += n
		}
	}

	return deleted, nil
}
