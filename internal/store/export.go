package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Export serializes the filtered slice of the log.
//
// Export always reads in ascending timestamp/seq order regardless of the
// filter's sort, so repeated exports over an unmodified store are
// byte-identical. SQL output emits INSERT statements replayable into a
// fresh store.
func (s *Store) Export(ctx context.Context, filter model.EventFilter, format model.ExportFormat) ([]byte, error) {
	filter.Sort = model.SortAscending
	events, err := s.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	switch format {
	case model.ExportJSON:
		return exportJSON(events)
	case model.ExportCSV:
		return exportCSV(events)
	case model.ExportSQL:
		return exportSQL(events)
	default:
		return nil, fmt.Errorf("export: unknown format %q", format)
	}
}

func exportJSON(events []model.ChangeEvent) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(events); err != nil {
		return nil, fmt.Errorf("export json: %w", err)
	}
	return buf.Bytes(), nil
}

var csvHeader = []string{
	"seq", "id", "type", "severity", "source", "timestamp",
	"project_id", "change_id", "correlation_id", "data", "metadata", "status",
}

func exportCSV(events []model.ChangeEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}

	for _, event := range events {
		dataJSON, err := marshalPayload(event.Data)
		if err != nil {
			return nil, fmt.Errorf("export csv: %w", err)
		}
		metaJSON, err := marshalMetadata(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("export csv: %w", err)
		}
		record := []string{
			strconv.FormatInt(event.Seq, 10),
			event.ID,
			string(event.Type),
			event.Severity.String(),
			event.Source,
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			event.ProjectID,
			event.ChangeID,
			event.CorrelationID,
			dataJSON,
			metaJSON,
			string(event.Status),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("export csv: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}
	return buf.Bytes(), nil
}

func exportSQL(events []model.ChangeEvent) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("-- tidelog change event export\n")

	for _, event := range events {
		dataJSON, err := marshalPayload(event.Data)
		if err != nil {
			return nil, fmt.Errorf("export sql: %w", err)
		}
		metaJSON, err := marshalMetadata(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("export sql: %w", err)
		}
		fmt.Fprintf(&buf,
			"INSERT INTO change_events (id, type, severity, source, timestamp_ns, project_id, change_id, correlation_id, data, metadata, status) VALUES (%s, %s, %d, %s, %d, %s, %s, %s, %s, %s, %s);\n",
			sqlQuote(event.ID),
			sqlQuote(string(event.Type)),
			int(event.Severity),
			sqlQuote(event.Source),
			event.Timestamp.UnixNano(),
			sqlQuote(event.ProjectID),
			sqlQuote(event.ChangeID),
			sqlQuote(event.CorrelationID),
			sqlQuote(dataJSON),
			sqlQuote(metaJSON),
			sqlQuote(string(event.Status)),
		)
	}
	return buf.Bytes(), nil
}

// sqlQuote renders a single-quoted SQL string literal.
func sqlQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
