package model

import (
	"fmt"
	"time"
)

// SessionStatus is the replay session state machine:
// pending -> running -> completed | failed | cancelled.
// Pausing transitions a running session back to pending; resuming re-enters
// running from the same processed count.
type SessionStatus string

// Session statuses.
const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// ReplayMode gates how much work each replayed event performs.
type ReplayMode string

// Replay modes. DryRun simulates without side effects; Safe validates
// structural invariants before executing; Fast skips validation; Verbose is
// Safe plus per-step logging.
const (
	ModeDryRun  ReplayMode = "dry_run"
	ModeSafe    ReplayMode = "safe"
	ModeFast    ReplayMode = "fast"
	ModeVerbose ReplayMode = "verbose"
)

// ReplayStrategy orders the prepared event list.
type ReplayStrategy string

// Replay strategies.
const (
	StrategySequential      ReplayStrategy = "sequential"
	StrategyParallel        ReplayStrategy = "parallel"
	StrategyDependencyAware ReplayStrategy = "dependency_aware"
	StrategySelective       ReplayStrategy = "selective"
)

// ReplayOptions configures one replay session.
type ReplayOptions struct {
	Mode               ReplayMode     `json:"mode"`
	Strategy           ReplayStrategy `json:"strategy"`
	MaxConcurrency     int            `json:"max_concurrency,omitempty"`
	SkipEvents         []string       `json:"skip_events,omitempty"`
	IncludeEvents      []string       `json:"include_events,omitempty"`
	StopOnError        bool           `json:"stop_on_error"`
	EnableValidation   bool           `json:"enable_validation"`
	EnableRollback     bool           `json:"enable_rollback"`
	CheckpointInterval int            `json:"checkpoint_interval,omitempty"`
}

// DefaultCheckpointInterval is used when EnableRollback is set and no
// interval is given.
const DefaultCheckpointInterval = 100

// Validate rejects malformed options synchronously.
func (o *ReplayOptions) Validate() error {
	switch o.Mode {
	case ModeDryRun, ModeSafe, ModeFast, ModeVerbose:
	case "":
		return fmt.Errorf("replay options: mode is required")
	default:
		return fmt.Errorf("replay options: unknown mode %q", o.Mode)
	}
	switch o.Strategy {
	case StrategySequential, StrategyParallel, StrategyDependencyAware, StrategySelective:
	case "":
		return fmt.Errorf("replay options: strategy is required")
	default:
		return fmt.Errorf("replay options: unknown strategy %q", o.Strategy)
	}
	if o.MaxConcurrency < 0 {
		return fmt.Errorf("replay options: negative max concurrency %d", o.MaxConcurrency)
	}
	if o.CheckpointInterval < 0 {
		return fmt.Errorf("replay options: negative checkpoint interval %d", o.CheckpointInterval)
	}
	return nil
}

// ReplaySession is the bookkeeping record for one replay.
// Mutated only by the replay engine that owns it; retained until deleted.
type ReplaySession struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Filter          EventFilter    `json:"filter"`
	Options         ReplayOptions  `json:"options"`
	Status          SessionStatus  `json:"status"`
	TotalEvents     int            `json:"total_events"`
	ProcessedEvents int            `json:"processed_events"`
	SucceededEvents int            `json:"succeeded_events"`
	FailedEvents    int            `json:"failed_events"`
	SkippedEvents   int            `json:"skipped_events"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Summary         *ReplaySummary `json:"summary,omitempty"`
}

// ReplayEventStatus is the per-event outcome.
type ReplayEventStatus string

// Per-event replay outcomes.
const (
	ReplaySuccess ReplayEventStatus = "success"
	ReplayFailed  ReplayEventStatus = "failed"
	ReplaySkipped ReplayEventStatus = "skipped"
)

// ReplayEventResult records the outcome of replaying one event.
// Append-only per session, ordered by Order.
type ReplayEventResult struct {
	SessionID string            `json:"session_id"`
	EventID   string            `json:"event_id"`
	Status    ReplayEventStatus `json:"status"`
	Duration  time.Duration     `json:"duration"`
	Error     string            `json:"error,omitempty"`
	Order     int               `json:"order"`
}

// ReplaySummary is the final result attached to a finished session.
type ReplaySummary struct {
	Duration        time.Duration      `json:"duration"`
	EventsPerSecond float64            `json:"events_per_second"`
	Validation      *ConsistencyReport `json:"validation,omitempty"`
}

// ConsistencyReport is the post-hoc validation attached when the session's
// EnableValidation option is set.
type ConsistencyReport struct {
	Checked       int      `json:"checked"`
	Consistent    bool     `json:"consistent"`
	Discrepancies []string `json:"discrepancies,omitempty"`
}

// IssueLevel grades a pre-flight validation finding.
type IssueLevel string

// Issue levels. Only error-level issues block execution.
const (
	IssueError   IssueLevel = "error"
	IssueWarning IssueLevel = "warning"
)

// ValidationIssue is one pre-flight finding from ValidateReplay.
type ValidationIssue struct {
	Level   IssueLevel `json:"level"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

// ValidationReport is the result of a pre-flight replay dry-check.
// Valid is true iff no error-level issue exists; warnings do not block.
type ValidationReport struct {
	SessionID string            `json:"session_id"`
	Valid     bool              `json:"valid"`
	Issues    []ValidationIssue `json:"issues"`
}

// ReplayProgress is the polling view of an in-flight session.
type ReplayProgress struct {
	SessionID         string        `json:"session_id"`
	Status            SessionStatus `json:"status"`
	TotalEvents       int           `json:"total_events"`
	ProcessedEvents   int           `json:"processed_events"`
	CurrentEvent      string        `json:"current_event,omitempty"`
	EstimatedTimeLeft time.Duration `json:"estimated_time_remaining"`
	Errors            []string      `json:"errors,omitempty"`
}
