package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Append inserts a change event into the log and returns its ID.
//
// Fails only on validation or serialization error - an accepted event is
// never silently dropped. Duplicate IDs are ignored via ON CONFLICT(id)
// DO NOTHING so retried producers stay idempotent; in that case the
// existing seq is returned on the event.
//
// Append fills in defaults for a zero ID (a fresh time-sortable ID) and a
// zero processing status (pending), then assigns the event's Seq from the
// insertion counter.
func (s *Store) Append(ctx context.Context, event *model.ChangeEvent) (string, error) {
	if event.ID == "" {
		event.ID = model.NewEventID(time.Now())
	}
	if event.Status == "" {
		event.Status = model.ProcessingPending
	}
	if err := event.Validate(); err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}

	dataJSON, err := marshalPayload(event.Data)
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}
	metaJSON, err := marshalMetadata(event.Metadata)
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO change_events
		(id, type, severity, source, timestamp_ns, project_id, change_id, correlation_id, data, metadata, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		event.ID,
		string(event.Type),
		int(event.Severity),
		event.Source,
		event.Timestamp.UnixNano(),
		event.ProjectID,
		event.ChangeID,
		event.CorrelationID,
		dataJSON,
		metaJSON,
		string(event.Status),
	)
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("append event: rows affected: %w", err)
	}

	if rowsAffected > 0 {
		seq, err := result.LastInsertId()
		if err != nil {
			return "", fmt.Errorf("append event: last insert id: %w", err)
		}
		event.Seq = seq
		return event.ID, nil
	}

	// Duplicate ID - fetch the seq of the existing row.
	err = s.db.QueryRowContext(ctx,
		`SELECT seq FROM change_events WHERE id = ?`, event.ID,
	).Scan(&event.Seq)
	if err != nil {
		return "", fmt.Errorf("append event: select existing: %w", err)
	}
	return event.ID, nil
}

// MarkProcessing transitions an event's processing marker to "processing".
// The event payload itself is immutable; only the status column moves.
func (s *Store) MarkProcessing(ctx context.Context, eventID string) error {
	return s.setStatus(ctx, eventID, model.ProcessingActive, model.ProcessingPending)
}

// MarkProcessed finalizes an event's processing marker as completed or failed.
func (s *Store) MarkProcessed(ctx context.Context, eventID string, succeeded bool) error {
	final := model.ProcessingCompleted
	if !succeeded {
		final = model.ProcessingFailed
	}
	return s.setStatus(ctx, eventID, final, model.ProcessingActive)
}

// setStatus moves the processing marker, enforcing the expected prior state.
func (s *Store) setStatus(ctx context.Context, eventID string, next, prior model.ProcessingStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE change_events SET status = ? WHERE id = ? AND status = ?
	`, string(next), eventID, string(prior))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("set status %s on %s: %w (or status not %s)", next, eventID, ErrNotFound, prior)
	}
	return nil
}

// marshalPayload serializes an event data payload. A nil payload becomes "{}".
func marshalPayload(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(raw), nil
}

// marshalMetadata serializes event metadata. Nil metadata becomes "{}".
func marshalMetadata(meta map[string]string) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(raw), nil
}

// unmarshalPayload parses a stored data payload.
func unmarshalPayload(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return data, nil
}

// unmarshalMetadata parses stored event metadata.
func unmarshalMetadata(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return map[string]string{}, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta, nil
}
