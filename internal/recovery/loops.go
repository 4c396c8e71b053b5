package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// fullBackupEvery makes every Nth scheduled backup a full one; the rest
// are incremental.
const fullBackupEvery = 4

// backupLoop takes periodic backups and prunes expired ones. Loop failures
// are logged, never fatal.
func (m *Manager) backupLoop() {
	defer m.wg.Done()
	if m.cfg.BackupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.BackupInterval)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			tick++
			typ := model.BackupIncremental
			if tick%fullBackupEvery == 0 {
				typ = model.BackupFull
			}

			ctx := context.Background()
			info, err := m.backups.CreateBackup(ctx, typ, nil)
			if err != nil {
				m.logger.Error("scheduled backup failed", zap.Error(err))
				continue
			}
			if _, err := m.journal.LogBackup(ctx, *info, false); err != nil {
				m.logger.Error("scheduled backup not recorded", zap.Error(err))
			}
			m.bus.BackupCreated(*info)

			if deleted, err := m.backups.Cleanup(ctx); err != nil {
				m.logger.Error("backup cleanup failed", zap.Error(err))
			} else if deleted > 0 {
				m.logger.Info("expired backups removed", zap.Int("count", deleted))
			}
		}
	}
}

// healthLoop snapshots resource state and warns when pressure or queue
// depth crosses the configured thresholds.
func (m *Manager) healthLoop() {
	defer m.wg.Done()
	if m.cfg.HealthCheckInterval <= 0 || m.monitor == nil {
		return
	}

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx := context.Background()
			state := m.monitor.Snapshot(ctx)

			depth := m.QueueDepth()
			pressured := state.MemoryPressure || state.DiskPressure || state.CPUPressure
			lowDisk := m.cfg.DiskFloorBytes > 0 && state.DiskFreeBytes > 0 &&
				state.DiskFreeBytes < m.cfg.DiskFloorBytes
			overQueue := m.cfg.MaxQueueDepth > 0 && depth > m.cfg.MaxQueueDepth
			if !pressured && !lowDisk && !overQueue {
				continue
			}

			m.logger.Warn("health check pressure",
				zap.Bool("memory", state.MemoryPressure),
				zap.Bool("disk", state.DiskPressure),
				zap.Bool("cpu", state.CPUPressure),
				zap.Int64("disk_free_bytes", state.DiskFreeBytes),
				zap.Int("queue_depth", depth))
			if _, err := m.journal.LogSystemEvent(ctx, model.SeverityWarning,
				"resource pressure detected", map[string]any{
					"memory_pressure": state.MemoryPressure,
					"disk_pressure":   state.DiskPressure,
					"cpu_pressure":    state.CPUPressure,
					"disk_free_bytes": state.DiskFreeBytes,
					"queue_depth":     depth,
					"max_queue_depth": m.cfg.MaxQueueDepth,
				}); err != nil {
				m.logger.Error("health event not recorded", zap.Error(err))
			}
		}
	}
}

// retentionLoop applies the event retention policy and purges expired
// rollback points on the configured interval.
func (m *Manager) retentionLoop() {
	defer m.wg.Done()
	if m.retention.SweepInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.retention.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx := context.Background()
			deleted, err := m.store.Cleanup(ctx, m.retention)
			if err != nil {
				m.logger.Error("retention sweep failed", zap.Error(err))
			} else if deleted > 0 {
				m.logger.Info("retention sweep", zap.Int64("deleted", deleted))
			}

			if _, err := m.rollback.PurgeExpired(ctx); err != nil {
				m.logger.Error("rollback purge failed", zap.Error(err))
			}
		}
	}
}
