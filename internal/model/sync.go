package model

import (
	"fmt"
	"time"
)

// SyncOperation describes one unit of work the recovery core protects.
// Owned by the sync subsystem; the core reads it and bumps RetryCount as a
// side effect of each recovery attempt.
type SyncOperation struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	TableName  string `json:"table_name,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`
}

// SyncError is the raw failure raised alongside an operation. It is pure
// classifier input and is never persisted directly.
type SyncError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FailureType is the classified category of a sync failure.
type FailureType string

// Failure types, in classifier priority order.
const (
	FailureNetwork    FailureType = "network_error"
	FailureTimeout    FailureType = "timeout_error"
	FailureAuth       FailureType = "authentication_error"
	FailurePermission FailureType = "permission_error"
	FailureCorruption FailureType = "data_corruption"
	FailureSchema     FailureType = "schema_mismatch"
	FailureConflict   FailureType = "conflict_error"
	FailureResource   FailureType = "resource_exhaustion"
	FailureUnknown    FailureType = "unknown_error"
)

// FailureSeverity grades a classified failure: Low < Medium < High < Critical.
type FailureSeverity int

// Failure severities.
const (
	FailureLow FailureSeverity = iota
	FailureMedium
	FailureHigh
	FailureCritical
)

// String returns the lowercase name of the failure severity.
func (s FailureSeverity) String() string {
	switch s {
	case FailureLow:
		return "low"
	case FailureMedium:
		return "medium"
	case FailureHigh:
		return "high"
	case FailureCritical:
		return "critical"
	default:
		return fmt.Sprintf("failure_severity(%d)", int(s))
	}
}

// MarshalText renders failure severities as names.
func (s FailureSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Escalate returns the next severity up, saturating at Critical.
func (s FailureSeverity) Escalate() FailureSeverity {
	if s >= FailureCritical {
		return FailureCritical
	}
	return s + 1
}

// RecoveryAction is a recommended or taken remediation.
type RecoveryAction string

// Recovery actions.
const (
	ActionRetry              RecoveryAction = "retry"
	ActionBackoffRetry       RecoveryAction = "backoff_retry"
	ActionFallbackStrategy   RecoveryAction = "fallback_strategy"
	ActionRestoreFromBackup  RecoveryAction = "restore_from_backup"
	ActionResetAndResync     RecoveryAction = "reset_and_resync"
	ActionManualIntervention RecoveryAction = "manual_intervention"
	ActionEscalate           RecoveryAction = "escalate"
)

// FailureClassification is the derived judgment over a raw SyncError.
//
// Invariant: Severity == FailureCritical implies Recoverable == false.
type FailureClassification struct {
	OperationID       string          `json:"operation_id"`
	FailureType       FailureType     `json:"failure_type"`
	Severity          FailureSeverity `json:"severity"`
	Recoverable       bool            `json:"recoverable"`
	RecommendedAction RecoveryAction  `json:"recommended_action"`
	EstimatedRecovery time.Duration   `json:"estimated_recovery_time"`
}

// RecoveryResult is the outcome of one strategy execution.
// NextAction, when set, is an escalation hint for the orchestrator.
type RecoveryResult struct {
	Success    bool           `json:"success"`
	Action     RecoveryAction `json:"action"`
	Duration   time.Duration  `json:"duration"`
	Error      string         `json:"error,omitempty"`
	NextAction RecoveryAction `json:"next_action,omitempty"`
}
