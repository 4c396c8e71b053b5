package strategy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// CorruptionRecovery restores a verified backup and validates the restored
// state. It requires a BackupInfo in the recovery context; without one, or
// when any step fails, it escalates to manual intervention and leaves the
// corrupted state alone beyond the restore attempt itself.
type CorruptionRecovery struct {
	restorer  BackupRestorer
	validator StateValidator
	logger    *zap.Logger
}

// NewCorruptionRecovery builds the strategy.
func NewCorruptionRecovery(restorer BackupRestorer, validator StateValidator, logger *zap.Logger) *CorruptionRecovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorruptionRecovery{restorer: restorer, validator: validator, logger: logger}
}

func (s *CorruptionRecovery) Name() string { return "corruption_recovery" }

func (s *CorruptionRecovery) FailureTypes() []model.FailureType {
	return []model.FailureType{model.FailureCorruption, model.FailureSchema}
}

func (s *CorruptionRecovery) MaxAttempts() int { return 1 }
func (s *CorruptionRecovery) Priority() int { return 5 }

func (s *CorruptionRecovery) Execute(ctx context.Context, rc *Context) model.RecoveryResult {
	return run(model.ActionRestoreFromBackup, func() model.RecoveryResult {
		if rc.Backup == nil {
			return failure(model.ActionRestoreFromBackup, model.ActionManualIntervention,
				errors.New("no backup available in recovery context"))
		}
		if s.restorer == nil {
			return failure(model.ActionRestoreFromBackup, model.ActionManualIntervention,
				errors.New("no backup restorer configured"))
		}

		if err := s.restorer.VerifyBackup(ctx, rc.Backup.ID); err != nil {
			return failure(model.ActionRestoreFromBackup, model.ActionManualIntervention,
				fmt.Errorf("verify backup %s: %w", rc.Backup.ID, err))
		}
		if err := s.restorer.RestoreFromBackup(ctx, rc.Backup.ID, rc.Backup.Tables); err != nil {
			return failure(model.ActionRestoreFromBackup, model.ActionManualIntervention,
				fmt.Errorf("restore backup %s: %w", rc.Backup.ID, err))
		}
		s.logger.Info("backup restored",
			zap.String("backup", rc.Backup.ID),
			zap.String("operation", rc.Operation.ID))

		if s.validator != nil {
			if err := s.validator.ValidateState(ctx, rc.Operation); err != nil {
				return failure(model.ActionRestoreFromBackup, model.ActionManualIntervention,
					fmt.Errorf("validate restored state: %w", err))
			}
		}
		return success(model.ActionRestoreFromBackup)
	})
}
