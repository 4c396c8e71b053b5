package model

import (
	"fmt"
	"time"
)

// EventType identifies what kind of fact a ChangeEvent records.
type EventType string

// Event types recorded in the change log.
const (
	EventFileChange       EventType = "file_change"
	EventDBChange         EventType = "db_change"
	EventSyncOperation    EventType = "sync_operation"
	EventConflictDetected EventType = "conflict_detected"
	EventConflictResolved EventType = "conflict_resolved"
	EventRecoveryStarted  EventType = "recovery_started"
	EventRecoveryComplete EventType = "recovery_completed"
	EventBackupCreated    EventType = "backup_created"
	EventBackupRestored   EventType = "backup_restored"
	EventSystem           EventType = "system_event"
)

// ValidEventTypes is the closed set of event types accepted by the store.
var ValidEventTypes = map[EventType]bool{
	EventFileChange:       true,
	EventDBChange:         true,
	EventSyncOperation:    true,
	EventConflictDetected: true,
	EventConflictResolved: true,
	EventRecoveryStarted:  true,
	EventRecoveryComplete: true,
	EventBackupCreated:    true,
	EventBackupRestored:   true,
	EventSystem:           true,
}

// Severity is the event severity scale. Ordered: Debug < Info < Warning <
// Error < Critical. Stored as an integer so range filters and per-severity
// retention windows are simple comparisons.
type Severity int

// Severity levels.
const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity converts a severity name to its value.
func ParseSeverity(name string) (Severity, error) {
	switch name {
	case "debug":
		return SeverityDebug, nil
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler so severities render as
// names in JSON/YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ProcessingStatus tracks asynchronous indexing of an event.
// The payload itself is immutable once written; only this marker moves.
type ProcessingStatus string

// Processing states: pending -> processing -> completed | failed.
const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingActive    ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// ChangeEvent is one immutable fact in the change log.
//
// ID is globally unique and time-sortable (see NewEventID). Seq is the
// store's monotonic insertion counter, assigned on append; it breaks
// equal-timestamp ties so sequential replay ordering is stable.
type ChangeEvent struct {
	ID            string            `json:"id"`
	Seq           int64             `json:"seq"`
	Type          EventType         `json:"type"`
	Severity      Severity          `json:"severity"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	ProjectID     string            `json:"project_id,omitempty"`
	ChangeID      string            `json:"change_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          map[string]any    `json:"data,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Status        ProcessingStatus  `json:"processing_status"`
}

// Validate checks the structural invariants required before append.
func (e *ChangeEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is empty")
	}
	if !ValidEventTypes[e.Type] {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is zero")
	}
	if e.Source == "" {
		return fmt.Errorf("event source is empty")
	}
	if e.Severity < SeverityDebug || e.Severity > SeverityCritical {
		return fmt.Errorf("severity %d out of range", int(e.Severity))
	}
	return nil
}

// DependsOn returns the event IDs this event declares as dependencies,
// parsed from the "depends_on" metadata key (comma-separated). Returns nil
// when no dependency metadata exists.
func (e *ChangeEvent) DependsOn() []string {
	raw, ok := e.Metadata[MetadataDependsOn]
	if !ok || raw == "" {
		return nil
	}
	var deps []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				deps = append(deps, raw[start:i])
			}
			start = i + 1
		}
	}
	return deps
}

// MetadataDependsOn is the metadata key carrying dependency edges for
// dependency-aware replay ordering.
const MetadataDependsOn = "depends_on"
