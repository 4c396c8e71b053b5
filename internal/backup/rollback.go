package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// ErrExpired marks a rollback point past its expiry. Restoration of an
// expired point never mutates any state.
var ErrExpired = errors.New("rollback point expired")

// DefaultRollbackTTL bounds how long a rollback point stays applicable.
const DefaultRollbackTTL = 24 * time.Hour

// RollbackStore is the slice of the event store that persists rollback
// points. *store.Store satisfies it.
type RollbackStore interface {
	SaveRollbackPoint(ctx context.Context, point model.RollbackPoint) error
	GetRollbackPoint(ctx context.Context, id string) (model.RollbackPoint, error)
	ListRollbackPoints(ctx context.Context) ([]model.RollbackPoint, error)
	DeleteRollbackPoint(ctx context.Context, id string) error
	PurgeExpiredRollbackPoints(ctx context.Context, now time.Time) (int64, error)
}

// RollbackManager pairs rollback points with the backups backing them and
// enforces expiry before any restore.
type RollbackManager struct {
	store   RollbackStore
	backups Manager
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewRollbackManager builds a rollback manager with the default TTL.
func NewRollbackManager(store RollbackStore, backups Manager, logger *zap.Logger) *RollbackManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollbackManager{
		store:   store,
		backups: backups,
		ttl:     DefaultRollbackTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// CreatePoint snapshots the store and persists a rollback point naming the
// snapshot and the operations it guards.
func (m *RollbackManager) CreatePoint(ctx context.Context, name string, operationIDs []string) (model.RollbackPoint, error) {
	info, err := m.backups.CreateBackup(ctx, model.BackupIncremental, nil)
	if err != nil {
		return model.RollbackPoint{}, fmt.Errorf("create rollback backup: %w", err)
	}

	now := m.now().UTC()
	point := model.RollbackPoint{
		ID:           model.NewRollbackPointID(now),
		Name:         name,
		BackupID:     info.ID,
		OperationIDs: operationIDs,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.SaveRollbackPoint(ctx, point); err != nil {
		return model.RollbackPoint{}, fmt.Errorf("save rollback point: %w", err)
	}

	m.logger.Debug("rollback point created",
		zap.String("id", point.ID),
		zap.String("backup", info.ID),
		zap.Time("expires_at", point.ExpiresAt))
	return point, nil
}

// Restore applies the rollback point's backup. An expired point fails with
// ErrExpired before any state is touched. The point is consumed on success.
func (m *RollbackManager) Restore(ctx context.Context, id string) error {
	point, err := m.store.GetRollbackPoint(ctx, id)
	if err != nil {
		return err
	}
	if point.Expired(m.now()) {
		return fmt.Errorf("restore rollback point %s: %w", id, ErrExpired)
	}

	if err := m.backups.VerifyBackup(ctx, point.BackupID); err != nil {
		return fmt.Errorf("restore rollback point %s: %w", id, err)
	}
	if err := m.backups.RestoreFromBackup(ctx, point.BackupID, nil); err != nil {
		return fmt.Errorf("restore rollback point %s: %w", id, err)
	}

	m.logger.Info("rollback point restored", zap.String("id", id), zap.String("backup", point.BackupID))
	return m.store.DeleteRollbackPoint(ctx, id)
}

// Discard consumes a rollback point after a successful recovery or replay.
// The backing backup is removed best-effort; a missing file is not an error.
func (m *RollbackManager) Discard(ctx context.Context, id string) error {
	point, err := m.store.GetRollbackPoint(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.DeleteRollbackPoint(ctx, id); err != nil {
		return err
	}
	if err := m.backups.DeleteBackup(ctx, point.BackupID); err != nil && !errors.Is(err, ErrBackupNotFound) {
		m.logger.Warn("rollback backup not removed", zap.String("backup", point.BackupID), zap.Error(err))
	}
	return nil
}

// List returns all rollback points, newest first.
func (m *RollbackManager) List(ctx context.Context) ([]model.RollbackPoint, error) {
	return m.store.ListRollbackPoints(ctx)
}

// PurgeExpired removes every expired rollback point and returns how many
// were purged. Run on startup and from the retention sweep.
func (m *RollbackManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.store.PurgeExpiredRollbackPoints(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("expired rollback points purged", zap.Int64("count", n))
	}
	return n, nil
}
