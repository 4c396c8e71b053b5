// Package journal is the typed logging facade the rest of the system uses
// to append change events. Each method computes the event type, source,
// and default severity from the call site so callers never hand-build
// ChangeEvents.
package journal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Event sources stamped by the facade.
const (
	SourceFileWatcher = "file_watcher"
	SourceDatabase    = "database"
	SourceSyncEngine  = "sync_engine"
	SourceRecovery    = "recovery_manager"
	SourceBackup      = "backup_manager"
	SourceSystem      = "system"
)

// Appender is the slice of the store the journal writes through.
type Appender interface {
	Append(ctx context.Context, event *model.ChangeEvent) (string, error)
}

// Journal appends typed events and mirrors them to the process log.
type Journal struct {
	store  Appender
	logger *zap.Logger
	now    func() time.Time
}

// New builds a journal over the given store.
func New(store Appender, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{store: store, logger: logger, now: time.Now}
}

func (j *Journal) append(ctx context.Context, event *model.ChangeEvent) (string, error) {
	event.Timestamp = j.now().UTC()
	event.ID = model.NewEventID(event.Timestamp)

	id, err := j.store.Append(ctx, event)
	if err != nil {
		j.logger.Error("journal append failed",
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return "", err
	}
	return id, nil
}

// LogFileChange records a watched file changing.
func (j *Journal) LogFileChange(ctx context.Context, projectID, path, action string) (string, error) {
	return j.append(ctx, &model.ChangeEvent{
		Type:      model.EventFileChange,
		Severity:  model.SeverityInfo,
		Source:    SourceFileWatcher,
		ProjectID: projectID,
		Data:      map[string]any{"path": path, "action": action},
	})
}

// LogDBChange records a database mutation.
func (j *Journal) LogDBChange(ctx context.Context, table, operation string, rowCount int) (string, error) {
	return j.append(ctx, &model.ChangeEvent{
		Type:     model.EventDBChange,
		Severity: model.SeverityInfo,
		Source:   SourceDatabase,
		Data:     map[string]any{"table": table, "operation": operation, "row_count": rowCount},
	})
}

// LogSyncOperation records one sync operation's outcome. Failures are
// logged at WARNING.
func (j *Journal) LogSyncOperation(ctx context.Context, op model.SyncOperation, success bool, detail string) (string, error) {
	severity := model.SeverityInfo
	if !success {
		severity = model.SeverityWarning
	}
	return j.append(ctx, &model.ChangeEvent{
		Type:          model.EventSyncOperation,
		Severity:      severity,
		Source:        SourceSyncEngine,
		CorrelationID: op.ID,
		Data: map[string]any{
			"operation":   op.ID,
			"type":        op.Type,
			"table":       op.TableName,
			"success":     success,
			"detail":      detail,
			"retry_count": op.RetryCount,
		},
	})
}

// LogConflict records a detected or resolved conflict. Detection is
// WARNING; resolution is INFO.
func (j *Journal) LogConflict(ctx context.Context, projectID, changeID, description string, resolved bool) (string, error) {
	eventType := model.EventConflictDetected
	severity := model.SeverityWarning
	if resolved {
		eventType = model.EventConflictResolved
		severity = model.SeverityInfo
	}
	return j.append(ctx, &model.ChangeEvent{
		Type:      eventType,
		Severity:  severity,
		Source:    SourceSyncEngine,
		ProjectID: projectID,
		ChangeID:  changeID,
		Data:      map[string]any{"description": description},
	})
}

// LogRecovery records a recovery attempt. A nil result is the attempt
// starting (WARNING); a result is its completion, INFO on success and
// ERROR on failure.
func (j *Journal) LogRecovery(ctx context.Context, operationID string, classification model.FailureClassification, result *model.RecoveryResult) (string, error) {
	event := &model.ChangeEvent{
		Source:        SourceRecovery,
		CorrelationID: operationID,
		Data: map[string]any{
			"operation":    operationID,
			"failure_type": string(classification.FailureType),
			"severity":     classification.Severity.String(),
		},
	}

	if result == nil {
		event.Type = model.EventRecoveryStarted
		event.Severity = model.SeverityWarning
		event.Data["recommended_action"] = string(classification.RecommendedAction)
		return j.append(ctx, event)
	}

	event.Type = model.EventRecoveryComplete
	event.Data["success"] = result.Success
	event.Data["action"] = string(result.Action)
	event.Data["duration_ms"] = result.Duration.Milliseconds()
	if result.Success {
		event.Severity = model.SeverityInfo
	} else {
		event.Severity = model.SeverityError
		event.Data["error"] = result.Error
	}
	return j.append(ctx, event)
}

// LogBackup records a backup being created or restored.
func (j *Journal) LogBackup(ctx context.Context, info model.BackupInfo, restored bool) (string, error) {
	eventType := model.EventBackupCreated
	if restored {
		eventType = model.EventBackupRestored
	}
	return j.append(ctx, &model.ChangeEvent{
		Type:     eventType,
		Severity: model.SeverityInfo,
		Source:   SourceBackup,
		Data: map[string]any{
			"backup_id":  info.ID,
			"type":       string(info.Type),
			"size_bytes": info.SizeBytes,
		},
	})
}

// LogSystemEvent records a system-level event at the given severity.
func (j *Journal) LogSystemEvent(ctx context.Context, severity model.Severity, message string, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	data["message"] = message
	return j.append(ctx, &model.ChangeEvent{
		Type:     model.EventSystem,
		Severity: severity,
		Source:   SourceSystem,
		Data:     data,
	})
}
