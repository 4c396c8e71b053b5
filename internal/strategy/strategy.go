// Package strategy holds the recovery strategy set and its factory.
//
// A strategy is a tagged, registered unit of remediation for one or more
// failure types. Strategies never panic or return errors past their own
// boundary; every internal fault becomes a failed RecoveryResult so the
// orchestrator only ever reasons about results.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Context carries everything a strategy may consult during one execution.
// PreviousAttempts gates re-invocation; strategies are idempotent-safe but
// callers decide whether to call again.
type Context struct {
	Operation        model.SyncOperation
	Classification   model.FailureClassification
	PreviousAttempts int
	Backup           *model.BackupInfo
	SystemState      SystemState
}

// SystemState is a point-in-time resource snapshot taken before recovery.
type SystemState struct {
	NetworkAvailable bool      `json:"network_available"`
	MemoryPressure   bool      `json:"memory_pressure"`
	DiskPressure     bool      `json:"disk_pressure"`
	CPUPressure      bool      `json:"cpu_pressure"`
	DiskFreeBytes    int64     `json:"disk_free_bytes"`
	CollectedAt      time.Time `json:"collected_at"`
}

// Strategy is one remediation tactic. Execute must swallow its own faults
// and report them through the result.
type Strategy interface {
	Name() string
	FailureTypes() []model.FailureType
	MaxAttempts() int
	Priority() int
	Execute(ctx context.Context, rc *Context) model.RecoveryResult
}

// Collaborator interfaces the host wires in. Each strategy degrades to an
// honest failure when its collaborator is absent, never to a simulated
// success.

// ConnectivityProber checks whether the remote side is reachable.
type ConnectivityProber interface {
	Probe(ctx context.Context) error
}

// CredentialSource refreshes the credentials the sync subsystem uses.
type CredentialSource interface {
	Refresh(ctx context.Context) error
}

// OperationRetrier re-issues the original failed operation.
type OperationRetrier interface {
	Retry(ctx context.Context, op model.SyncOperation) error
}

// ResolutionPolicy is how a conflict gets settled.
type ResolutionPolicy string

// Resolution policies, from cheapest to most careful.
const (
	PolicyLastWriteWins ResolutionPolicy = "last_write_wins"
	PolicyAutoMerge     ResolutionPolicy = "auto_merge"
	PolicyManualReview  ResolutionPolicy = "manual_review"
)

// ConflictResolver applies a resolution policy and reports how many
// records it settled.
type ConflictResolver interface {
	Resolve(ctx context.Context, op model.SyncOperation, policy ResolutionPolicy) (int, error)
}

// BackupRestorer is the slice of the backup manager the corruption
// strategy needs.
type BackupRestorer interface {
	VerifyBackup(ctx context.Context, id string) error
	RestoreFromBackup(ctx context.Context, id string, tables []string) error
}

// StateValidator checks restored state against an operation's expectations.
type StateValidator interface {
	ValidateState(ctx context.Context, op model.SyncOperation) error
}

// SystemMonitor snapshots resource pressure and frees what it can.
type SystemMonitor interface {
	Snapshot(ctx context.Context) SystemState
	FreeResources(ctx context.Context, state SystemState) error
}

// run executes fn under a recover guard. A panic inside a strategy becomes
// a failed result carrying the panic text.
func run(action model.RecoveryAction, fn func() model.RecoveryResult) (result model.RecoveryResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = model.RecoveryResult{
				Success:    false,
				Action:     action,
				Duration:   time.Since(start),
				Error:      fmt.Sprintf("strategy fault: %v", r),
				NextAction: model.ActionManualIntervention,
			}
		}
	}()
	result = fn()
	result.Duration = time.Since(start)
	return result
}

// failure builds a failed result with an optional escalation hint.
func failure(action model.RecoveryAction, next model.RecoveryAction, err error) model.RecoveryResult {
	return model.RecoveryResult{
		Success:    false,
		Action:     action,
		Error:      err.Error(),
		NextAction: next,
	}
}

// success builds a succeeded result.
func success(action model.RecoveryAction) model.RecoveryResult {
	return model.RecoveryResult{Success: true, Action: action}
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
