package model

import (
	"fmt"
	"time"
)

// SortOrder controls the timestamp ordering of query results.
type SortOrder string

// Sort orders. Ascending is the replay default (deterministic execution
// order); descending suits UI listings of recent events.
const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// EventFilter selects a slice of the change log.
//
// All set-valued fields are conjunctive: an event matches when it satisfies
// every non-empty constraint. Zero Limit means no limit.
type EventFilter struct {
	Types         []EventType `json:"types,omitempty"`
	Severities    []Severity  `json:"severities,omitempty"`
	MinSeverity   *Severity   `json:"min_severity,omitempty"`
	Sources       []string    `json:"sources,omitempty"`
	ProjectIDs    []string    `json:"project_ids,omitempty"`
	ChangeIDs     []string    `json:"change_ids,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Since         *time.Time  `json:"since,omitempty"`
	Until         *time.Time  `json:"until,omitempty"`
	Offset        int         `json:"offset,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Sort          SortOrder   `json:"sort,omitempty"`
}

// Validate rejects malformed filters before any query runs.
// Input errors are synchronous and never recorded as events.
func (f *EventFilter) Validate() error {
	for _, t := range f.Types {
		if !ValidEventTypes[t] {
			return fmt.Errorf("filter: unknown event type %q", t)
		}
	}
	for _, s := range f.Severities {
		if s < SeverityDebug || s > SeverityCritical {
			return fmt.Errorf("filter: severity %d out of range", int(s))
		}
	}
	if f.Offset < 0 {
		return fmt.Errorf("filter: negative offset %d", f.Offset)
	}
	if f.Limit < 0 {
		return fmt.Errorf("filter: negative limit %d", f.Limit)
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return fmt.Errorf("filter: until %s precedes since %s", f.Until, f.Since)
	}
	switch f.Sort {
	case "", SortAscending, SortDescending:
	default:
		return fmt.Errorf("filter: unknown sort order %q", f.Sort)
	}
	return nil
}

// EventStats summarizes a filtered slice of the log.
type EventStats struct {
	TotalEvents int64               `json:"total_events"`
	ByType      map[EventType]int64 `json:"events_by_type"`
	BySeverity  map[string]int64    `json:"events_by_severity"`
	Timeline    []TimelineBucket    `json:"timeline"`
}

// TimelineBucket counts events within one hour-aligned window.
type TimelineBucket struct {
	Start time.Time `json:"start"`
	Count int64     `json:"count"`
}

// ExportFormat selects the serialization for event export.
type ExportFormat string

// Export formats. SQL emits INSERT statements replayable into a fresh store.
const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportSQL  ExportFormat = "sql"
)

// ParseExportFormat validates an export format name.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch ExportFormat(name) {
	case ExportJSON, ExportCSV, ExportSQL:
		return ExportFormat(name), nil
	default:
		return "", fmt.Errorf("unknown export format %q", name)
	}
}
