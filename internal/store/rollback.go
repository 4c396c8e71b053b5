package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// SaveRollbackPoint persists a rollback point.
// Duplicate IDs are ignored - rollback point creation is idempotent.
func (s *Store) SaveRollbackPoint(ctx context.Context, point model.RollbackPoint) error {
	opsJSON, err := json.Marshal(point.OperationIDs)
	if err != nil {
		return fmt.Errorf("save rollback point: marshal operations: %w", err)
	}

	err = s.execContext(ctx, `
		INSERT INTO rollback_points (id, name, backup_id, operation_ids, created_at_ns, expires_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		point.ID,
		point.Name,
		point.BackupID,
		string(opsJSON),
		point.CreatedAt.UnixNano(),
		point.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save rollback point: %w", err)
	}
	return nil
}

// GetRollbackPoint retrieves a rollback point by ID.
// Returns ErrNotFound if no such point exists.
func (s *Store) GetRollbackPoint(ctx context.Context, id string) (model.RollbackPoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, backup_id, operation_ids, created_at_ns, expires_at_ns
		FROM rollback_points
		WHERE id = ?
	`, id)

	point, err := scanRollbackPoint(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RollbackPoint{}, fmt.Errorf("get rollback point %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.RollbackPoint{}, fmt.Errorf("get rollback point %s: %w", id, err)
	}
	return point, nil
}

// ListRollbackPoints returns all rollback points, newest first.
func (s *Store) ListRollbackPoints(ctx context.Context) ([]model.RollbackPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, backup_id, operation_ids, created_at_ns, expires_at_ns
		FROM rollback_points
		ORDER BY created_at_ns DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list rollback points: %w", err)
	}
	defer rows.Close()

	var points []model.RollbackPoint
	for rows.Next() {
		point, err := scanRollbackPoint(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list rollback points: %w", err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rollback points: iterate: %w", err)
	}

	if points == nil {
		points = []model.RollbackPoint{}
	}
	return points, nil
}

// DeleteRollbackPoint removes a rollback point (consumed on successful
// recovery, or purged after expiry).
func (s *Store) DeleteRollbackPoint(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rollback_points WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rollback point: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rollback point: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("delete rollback point %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeExpiredRollbackPoints removes all points whose expiry has passed and
// returns how many were removed.
func (s *Store) PurgeExpiredRollbackPoints(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rollback_points WHERE expires_at_ns <= ?
	`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge rollback points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rollback points: rows affected: %w", err)
	}
	return n, nil
}

func scanRollbackPoint(scan func(...any) error) (model.RollbackPoint, error) {
	var (
		point     model.RollbackPoint
		opsJSON   string
		createdNS int64
		expiresNS int64
	)

	if err := scan(&point.ID, &point.Name, &point.BackupID, &opsJSON, &createdNS, &expiresNS); err != nil {
		return model.RollbackPoint{}, err
	}

	point.CreatedAt = time.Unix(0, createdNS).UTC()
	point.ExpiresAt = time.Unix(0, expiresNS).UTC()

	if err := json.Unmarshal([]byte(opsJSON), &point.OperationIDs); err != nil {
		return model.RollbackPoint{}, fmt.Errorf("unmarshal operation ids: %w", err)
	}
	return point, nil
}
