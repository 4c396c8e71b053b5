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

// CreateSession persists a new replay session record.
func (s *Store) CreateSession(ctx context.Context, session model.ReplaySession) error {
	filterJSON, err := json.Marshal(session.Filter)
	if err != nil {
		return fmt.Errorf("create session: marshal filter: %w", err)
	}
	optionsJSON, err := json.Marshal(session.Options)
	if err != nil {
		return fmt.Errorf("create session: marshal options: %w", err)
	}

	err = s.execContext(ctx, `
		INSERT INTO replay_sessions
		(id, name, description, filter, options, status, total_events, processed_events,
		 succeeded_events, failed_events, skipped_events, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.Name,
		session.Description,
		string(filterJSON),
		string(optionsJSON),
		string(session.Status),
		session.TotalEvents,
		session.ProcessedEvents,
		session.SucceededEvents,
		session.FailedEvents,
		session.SkippedEvents,
		session.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSession rewrites a session's mutable fields: status, counters,
// timestamps, and final summary. The filter and options are fixed at
// creation.
func (s *Store) UpdateSession(ctx context.Context, session model.ReplaySession) error {
	var summaryJSON sql.NullString
	if session.Summary != nil {
		raw, err := json.Marshal(session.Summary)
		if err != nil {
			return fmt.Errorf("update session: marshal summary: %w", err)
		}
		summaryJSON = sql.NullString{String: string(raw), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE replay_sessions SET
			status = ?, total_events = ?, processed_events = ?, succeeded_events = ?,
			failed_events = ?, skipped_events = ?, started_at_ns = ?, completed_at_ns = ?, summary = ?
		WHERE id = ?
	`,
		string(session.Status),
		session.TotalEvents,
		session.ProcessedEvents,
		session.SucceededEvents,
		session.FailedEvents,
		session.SkippedEvents,
		nullTimeNS(session.StartedAt),
		nullTimeNS(session.CompletedAt),
		summaryJSON,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// GetSession retrieves a replay session by ID.
// Returns ErrNotFound if no such session exists.
func (s *Store) GetSession(ctx context.Context, id string) (model.ReplaySession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, filter, options, status, total_events, processed_events,
		       succeeded_events, failed_events, skipped_events, created_at_ns, started_at_ns,
		       completed_at_ns, summary
		FROM replay_sessions
		WHERE id = ?
	`, id)

	session, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReplaySession{}, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.ReplaySession{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return session, nil
}

// ListSessions returns all replay sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]model.ReplaySession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, filter, options, status, total_events, processed_events,
		       succeeded_events, failed_events, skipped_events, created_at_ns, started_at_ns,
		       completed_at_ns, summary
		FROM replay_sessions
		ORDER BY created_at_ns DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.ReplaySession
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: iterate: %w", err)
	}

	if sessions == nil {
		sessions = []model.ReplaySession{}
	}
	return sessions, nil
}

// DeleteSession removes a session and (via cascade) its per-event results.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM replay_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("delete session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendEventResult records the outcome of replaying one event.
// Results are append-only per session, keyed by (session, order).
func (s *Store) AppendEventResult(ctx context.Context, result model.ReplayEventResult) error {
	err := s.execContext(ctx, `
		INSERT INTO replay_results (session_id, event_id, status, duration_ns, error, ord)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, ord) DO NOTHING
	`,
		result.SessionID,
		result.EventID,
		string(result.Status),
		int64(result.Duration),
		result.Error,
		result.Order,
	)
	if err != nil {
		return fmt.Errorf("append event result: %w", err)
	}
	return nil
}

// ListEventResults returns a session's per-event results ordered by replay
// order.
func (s *Store) ListEventResults(ctx context.Context, sessionID string) ([]model.ReplayEventResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, event_id, status, duration_ns, error, ord
		FROM replay_results
		WHERE session_id = ?
		ORDER BY ord ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list event results: %w", err)
	}
	defer rows.Close()

	var results []model.ReplayEventResult
	for rows.Next() {
		var r model.ReplayEventResult
		var status string
		var durationNS int64
		if err := rows.Scan(&r.SessionID, &r.EventID, &status, &durationNS, &r.Error, &r.Order); err != nil {
			return nil, fmt.Errorf("list event results: scan: %w", err)
		}
		r.Status = model.ReplayEventStatus(status)
		r.Duration = time.Duration(durationNS)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list event results: iterate: %w", err)
	}

	if results == nil {
		results = []model.ReplayEventResult{}
	}
	return results, nil
}

// scanSession scans one session row via the given scan function.
func scanSession(scan func(...any) error) (model.ReplaySession, error) {
	var (
		session     model.ReplaySession
		filterJSON  string
		optionsJSON string
		status      string
		createdNS   int64
		startedNS   sql.NullInt64
		completedNS sql.NullInt64
		summaryJSON sql.NullString
	)

	if err := scan(
		&session.ID, &session.Name, &session.Description, &filterJSON, &optionsJSON, &status,
		&session.TotalEvents, &session.ProcessedEvents, &session.SucceededEvents,
		&session.FailedEvents, &session.SkippedEvents, &createdNS, &startedNS, &completedNS,
		&summaryJSON,
	); err != nil {
		return model.ReplaySession{}, err
	}

	session.Status = model.SessionStatus(status)
	session.CreatedAt = time.Unix(0, createdNS).UTC()
	session.StartedAt = timeFromNull(startedNS)
	session.CompletedAt = timeFromNull(completedNS)

	if err := json.Unmarshal([]byte(filterJSON), &session.Filter); err != nil {
		return model.ReplaySession{}, fmt.Errorf("unmarshal filter: %w", err)
	}
	if err := json.Unmarshal([]byte(optionsJSON), &session.Options); err != nil {
		return model.ReplaySession{}, fmt.Errorf("unmarshal options: %w", err)
	}
	if summaryJSON.Valid {
		var summary model.ReplaySummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return model.ReplaySession{}, fmt.Errorf("unmarshal summary: %w", err)
		}
		session.Summary = &summary
	}

	return session, nil
}

// nullTimeNS converts an optional time into a nullable unix-nano column.
func nullTimeNS(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// timeFromNull converts a nullable unix-nano column into an optional time.
func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
