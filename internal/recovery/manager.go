// Package recovery orchestrates failure handling: classify, pick a
// strategy, guard the attempt with a rollback point, and account for the
// outcome. One Manager instance is constructed explicitly and shut down
// explicitly; there is no process-wide singleton.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/backup"
	"github.com/fenwick-labs/tidelog/internal/bus"
	"github.com/fenwick-labs/tidelog/internal/classify"
	"github.com/fenwick-labs/tidelog/internal/config"
	"github.com/fenwick-labs/tidelog/internal/journal"
	"github.com/fenwick-labs/tidelog/internal/model"
	"github.com/fenwick-labs/tidelog/internal/store"
	"github.com/fenwick-labs/tidelog/internal/strategy"
)

// Deps wires the manager's collaborators.
type Deps struct {
	Store    *store.Store
	Journal  *journal.Journal
	Backups  backup.Manager
	Rollback *backup.RollbackManager
	Factory  *strategy.Factory
	Bus      *bus.Bus
	Monitor  strategy.SystemMonitor
	Logger   *zap.Logger
}

// inflight tracks one running recovery; waiters block on done and read
// result afterwards.
type inflight struct {
	done   chan struct{}
	result model.RecoveryResult
}

// Manager drives the recovery state machine per failed operation.
type Manager struct {
	cfg        config.RecoveryConfig
	retention  store.RetentionPolicy
	classifier *classify.Classifier

	store    *store.Store
	journal  *journal.Journal
	backups  backup.Manager
	rollback *backup.RollbackManager
	factory  *strategy.Factory
	bus      *bus.Bus
	monitor  strategy.SystemMonitor
	logger   *zap.Logger

	mu       sync.Mutex
	running  map[string]*inflight
	attempts map[string]int
	stats    Stats
	recent   []model.FailureClassification

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// recentLimit bounds the classification history kept for status reports.
const recentLimit = 50

// NewManager builds a recovery manager. Call Initialize before use.
func NewManager(cfg config.RecoveryConfig, retention store.RetentionPolicy, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		retention:  retention,
		classifier: classify.New(cfg.FailureThreshold),
		store:      deps.Store,
		journal:    deps.Journal,
		backups:    deps.Backups,
		rollback:   deps.Rollback,
		factory:    deps.Factory,
		bus:        deps.Bus,
		monitor:    deps.Monitor,
		logger:     logger,
		running:    make(map[string]*inflight),
		attempts:   make(map[string]int),
		stats:      newStats(),
	}
}

// Initialize runs the crash-recovery sweep and starts the background
// loops. Idempotent.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.stop = make(chan struct{})
	m.mu.Unlock()

	// Points that expired while the process was down are useless; purge
	// them before anything can try to restore one.
	if purged, err := m.rollback.PurgeExpired(ctx); err != nil {
		m.logger.Warn("startup rollback sweep failed", zap.Error(err))
	} else if purged > 0 {
		m.logger.Info("startup rollback sweep", zap.Int64("purged", purged))
	}

	if _, err := m.journal.LogSystemEvent(ctx, model.SeverityInfo, "recovery manager started", nil); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	m.wg.Add(3)
	go m.backupLoop()
	go m.healthLoop()
	go m.retentionLoop()
	return nil
}

// Shutdown stops the background loops and waits for them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	close(m.stop)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err := m.journal.LogSystemEvent(ctx, model.SeverityInfo, "recovery manager stopped", nil)
	return err
}

// HandleSyncFailure is the entry point for the sync subsystem: classify
// the failure, record it, and either attempt recovery or escalate.
// The returned result is nil when no recovery was attempted.
func (m *Manager) HandleSyncFailure(ctx context.Context, op model.SyncOperation, syncErr model.SyncError) (model.FailureClassification, *model.RecoveryResult, error) {
	classification := m.classifier.Classify(op, syncErr)

	m.mu.Lock()
	m.stats.TotalFailures++
	m.recent = append(m.recent, classification)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}
	m.mu.Unlock()

	if _, err := m.journal.LogSyncOperation(ctx, op, false, syncErr.Error()); err != nil {
		return classification, nil, fmt.Errorf("record failure: %w", err)
	}
	m.logger.Warn("sync failure detected",
		zap.String("operation", op.ID),
		zap.String("failure_type", string(classification.FailureType)),
		zap.String("severity", classification.Severity.String()),
		zap.Bool("recoverable", classification.Recoverable))
	m.bus.FailureDetected(classification)

	switch {
	case m.cfg.EnableAutoRecovery && classification.Recoverable:
		result := m.AttemptRecovery(ctx, op, classification)
		return classification, &result, nil
	case classification.Severity == model.FailureCritical:
		m.handleCriticalFailure(ctx, op, classification)
		return classification, nil, nil
	default:
		return classification, nil, nil
	}
}

// AttemptRecovery runs one recovery attempt for the operation. Concurrent
// calls for the same operation id share a single execution; later callers
// block until the first finishes and observe its result.
func (m *Manager) AttemptRecovery(ctx context.Context, op model.SyncOperation, classification model.FailureClassification) model.RecoveryResult {
	m.mu.Lock()
	if existing, ok := m.running[op.ID]; ok {
		m.mu.Unlock()
		<-existing.done
		return existing.result
	}
	entry := &inflight{done: make(chan struct{})}
	m.running[op.ID] = entry
	previousAttempts := m.attempts[op.ID]
	m.attempts[op.ID] = previousAttempts + 1
	m.mu.Unlock()

	// The attempt counts against the operation's retry budget; strategies
	// see the incremented count on their context.
	op.RetryCount++
	result := m.recoverOnce(ctx, op, classification, previousAttempts)

	m.mu.Lock()
	entry.result = result
	delete(m.running, op.ID)
	m.stats.record(classification.FailureType, result)
	if !result.Success &&
		(result.NextAction == model.ActionManualIntervention || result.NextAction == model.ActionEscalate) {
		m.stats.ManualInterventions++
	}
	m.mu.Unlock()
	close(entry.done)

	if _, err := m.journal.LogRecovery(ctx, op.ID, classification, &result); err != nil {
		m.logger.Error("recovery outcome not recorded", zap.String("operation", op.ID), zap.Error(err))
	}
	m.bus.RecoveryCompleted(op.ID, result)
	return result
}

// recoverOnce performs the guarded attempt: rollback point, state
// snapshot, strategy execution. A fault anywhere in this flow restores the
// rollback point and yields a failed result.
func (m *Manager) recoverOnce(ctx context.Context, op model.SyncOperation, classification model.FailureClassification, previousAttempts int) (result model.RecoveryResult) {
	start := time.Now()

	// Best effort: losing the rollback point only disables
	// rollback-on-failure for this attempt.
	var pointID string
	point, err := m.rollback.CreatePoint(ctx, "recovery "+op.ID, []string{op.ID})
	if err != nil {
		m.logger.Warn("rollback point unavailable", zap.String("operation", op.ID), zap.Error(err))
	} else {
		pointID = point.ID
		m.bus.RollbackPointCreated(point)
	}

	defer func() {
		if r := recover(); r != nil {
			if pointID != "" {
				if restoreErr := m.rollback.Restore(ctx, pointID); restoreErr != nil {
					m.logger.Error("rollback after fault failed",
						zap.String("operation", op.ID), zap.Error(restoreErr))
				}
			}
			result = model.RecoveryResult{
				Success:    false,
				Action:     classification.RecommendedAction,
				Duration:   time.Since(start),
				Error:      fmt.Sprintf("recovery fault: %v", r),
				NextAction: model.ActionManualIntervention,
			}
		}
	}()

	var state strategy.SystemState
	if m.monitor != nil {
		state = m.monitor.Snapshot(ctx)
	}

	rc := &strategy.Context{
		Operation:        op,
		Classification:   classification,
		PreviousAttempts: previousAttempts,
		SystemState:      state,
	}
	// Only a full backup qualifies as restore material; the incremental
	// snapshot behind the rollback point captures the failed state itself.
	if latest, err := m.backups.ListBackups(ctx, model.BackupFilter{Type: model.BackupFull, Limit: 1}); err == nil && len(latest) > 0 {
		rc.Backup = latest[0]
	}

	if _, err := m.journal.LogRecovery(ctx, op.ID, classification, nil); err != nil {
		m.logger.Error("recovery start not recorded", zap.String("operation", op.ID), zap.Error(err))
	}
	m.bus.RecoveryStarted(op.ID, classification)

	chosen := m.factory.Select(classification.FailureType, previousAttempts)
	m.logger.Info("recovery attempt",
		zap.String("operation", op.ID),
		zap.String("strategy", chosen.Name()),
		zap.Int("previous_attempts", previousAttempts))

	result = chosen.Execute(ctx, rc)

	if result.Success && pointID != "" {
		if err := m.rollback.Discard(ctx, pointID); err != nil {
			m.logger.Warn("rollback point not discarded", zap.String("point", pointID), zap.Error(err))
		}
	}
	return result
}

// handleCriticalFailure never auto-repairs: it forces a full backup,
// records the failure at CRITICAL, and counts a manual intervention.
func (m *Manager) handleCriticalFailure(ctx context.Context, op model.SyncOperation, classification model.FailureClassification) {
	m.mu.Lock()
	m.stats.ManualInterventions++
	m.mu.Unlock()

	info, err := m.backups.CreateBackup(ctx, model.BackupFull, nil)
	if err != nil {
		m.logger.Error("critical failure backup failed", zap.String("operation", op.ID), zap.Error(err))
	} else {
		if _, err := m.journal.LogBackup(ctx, *info, false); err != nil {
			m.logger.Error("critical backup not recorded", zap.Error(err))
		}
		m.bus.BackupCreated(*info)
	}

	if _, err := m.journal.LogSystemEvent(ctx, model.SeverityCritical,
		"critical failure requires manual intervention", map[string]any{
			"operation":    op.ID,
			"failure_type": string(classification.FailureType),
		}); err != nil {
		m.logger.Error("critical failure not recorded", zap.Error(err))
	}
	m.logger.Error("critical failure, manual intervention required",
		zap.String("operation", op.ID),
		zap.String("failure_type", string(classification.FailureType)))
}

// QueueDepth reports how many recoveries are in flight right now.
func (m *Manager) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// GetStats returns a copy of the rolling statistics.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.snapshot()
}
