package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

const eventColumns = `seq, id, type, severity, source, timestamp_ns, project_id, change_id, correlation_id, data, metadata, status`

// Query returns the events matching the filter.
//
// Ordering is deterministic: timestamp then the insertion counter (seq) as
// the stable tie-break, ascending by default. Two queries over an
// unmodified store return identical orderings.
func (s *Store) Query(ctx context.Context, filter model.EventFilter) ([]model.ChangeEvent, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM change_events%s%s%s`,
		eventColumns, where, orderClause(filter.Sort), limitClause(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Count returns the number of events matching the filter, ignoring
// pagination.
func (s *Store) Count(ctx context.Context, filter model.EventFilter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	where, args := buildWhere(filter)
	var count int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM change_events%s`, where), args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// Search returns events whose payload or metadata contains the given text
// (case-insensitive substring), narrowed by the filter.
func (s *Store) Search(ctx context.Context, text string, filter model.EventFilter) ([]model.ChangeEvent, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(filter)
	needle := "%" + escapeLike(text) + "%"
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	where += `(data LIKE ? ESCAPE '\' OR metadata LIKE ? ESCAPE '\' OR source LIKE ? ESCAPE '\')`
	args = append(args, needle, needle, needle)

	query := fmt.Sprintf(`SELECT %s FROM change_events%s%s%s`,
		eventColumns, where, orderClause(filter.Sort), limitClause(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// GetEvent retrieves a single event by ID.
// Returns ErrNotFound if no such event exists.
func (s *Store) GetEvent(ctx context.Context, id string) (model.ChangeEvent, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM change_events WHERE id = ?`, eventColumns), id)

	event, err := scanEventRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChangeEvent{}, fmt.Errorf("get event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return event, nil
}

// buildWhere assembles the WHERE clause for an event filter.
func buildWhere(filter model.EventFilter) (string, []any) {
	var conds []string
	var args []any

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conds = append(conds, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, sev := range filter.Severities {
			placeholders[i] = "?"
			args = append(args, int(sev))
		}
		conds = append(conds, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.MinSeverity != nil {
		conds = append(conds, "severity >= ?")
		args = append(args, int(*filter.MinSeverity))
	}
	if len(filter.Sources) > 0 {
		placeholders := make([]string, len(filter.Sources))
		for i, src := range filter.Sources {
			placeholders[i] = "?"
			args = append(args, src)
		}
		conds = append(conds, fmt.Sprintf("source IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(filter.ProjectIDs) > 0 {
		placeholders := make([]string, len(filter.ProjectIDs))
		for i, id := range filter.ProjectIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conds = append(conds, fmt.Sprintf("project_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(filter.ChangeIDs) > 0 {
		placeholders := make([]string, len(filter.ChangeIDs))
		for i, id := range filter.ChangeIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conds = append(conds, fmt.Sprintf("change_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.CorrelationID != "" {
		conds = append(conds, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}
	if filter.Since != nil {
		conds = append(conds, "timestamp_ns >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Until != nil {
		conds = append(conds, "timestamp_ns <= ?")
		args = append(args, filter.Until.UnixNano())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderClause renders the deterministic ordering for a sort direction.
// Seq follows the timestamp direction so pagination stays consistent.
func orderClause(sort model.SortOrder) string {
	if sort == model.SortDescending {
		return " ORDER BY timestamp_ns DESC, seq DESC"
	}
	return " ORDER BY timestamp_ns ASC, seq ASC"
}

// limitClause renders pagination. SQLite requires a LIMIT before OFFSET;
// -1 means unlimited.
func limitClause(filter model.EventFilter) string {
	if filter.Limit == 0 && filter.Offset == 0 {
		return ""
	}
	limit := filter.Limit
	if limit == 0 {
		limit = -1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, filter.Offset)
}

// escapeLike escapes LIKE wildcards in user-supplied search text.
func escapeLike(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `%`, `\%`)
	text = strings.ReplaceAll(text, `_`, `\_`)
	return text
}

// collectEvents drains rows into a slice, returning an empty slice
// (not nil) when nothing matched.
func collectEvents(rows *sql.Rows) ([]model.ChangeEvent, error) {
	var events []model.ChangeEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	if events == nil {
		events = []model.ChangeEvent{}
	}
	return events, nil
}

// scanEvent scans one row from a multi-row result.
func scanEvent(rows *sql.Rows) (model.ChangeEvent, error) {
	var (
		event       model.ChangeEvent
		eventType   string
		severity    int
		timestampNS int64
		dataJSON    string
		metaJSON    string
		status      string
	)

	if err := rows.Scan(
		&event.Seq, &event.ID, &eventType, &severity, &event.Source, &timestampNS,
		&event.ProjectID, &event.ChangeID, &event.CorrelationID, &dataJSON, &metaJSON, &status,
	); err != nil {
		return model.ChangeEvent{}, fmt.Errorf("scan event: %w", err)
	}

	return finishEvent(event, eventType, severity, timestampNS, dataJSON, metaJSON, status)
}

// scanEventRow scans a single-row result.
func scanEventRow(row *sql.Row) (model.ChangeEvent, error) {
	var (
		event       model.ChangeEvent
		eventType   string
		severity    int
		timestampNS int64
		dataJSON    string
		metaJSON    string
		status      string
	)

	if err := row.Scan(
		&event.Seq, &event.ID, &eventType, &severity, &event.Source, &timestampNS,
		&event.ProjectID, &event.ChangeID, &event.CorrelationID, &dataJSON, &metaJSON, &status,
	); err != nil {
		return model.ChangeEvent{}, err
	}

	return finishEvent(event, eventType, severity, timestampNS, dataJSON, metaJSON, status)
}

func finishEvent(event model.ChangeEvent, eventType string, severity int, timestampNS int64, dataJSON, metaJSON, status string) (model.ChangeEvent, error) {
	event.Type = model.EventType(eventType)
	event.Severity = model.Severity(severity)
	event.Timestamp = time.Unix(0, timestampNS).UTC()
	event.Status = model.ProcessingStatus(status)

	data, err := unmarshalPayload(dataJSON)
	if err != nil {
		return model.ChangeEvent{}, err
	}
	event.Data = data

	meta, err := unmarshalMetadata(metaJSON)
	if err != nil {
		return model.ChangeEvent{}, err
	}
	event.Metadata = meta

	return event, nil
}
