package strategy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// ResourceMitigation frees whatever resource is under pressure, then
// retries the original operation once.
type ResourceMitigation struct {
	monitor SystemMonitor
	retrier OperationRetrier
	logger  *zap.Logger
}

// NewResourceMitigation builds the strategy.
func NewResourceMitigation(monitor SystemMonitor, retrier OperationRetrier, logger *zap.Logger) *ResourceMitigation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceMitigation{monitor: monitor, retrier: retrier, logger: logger}
}

func (s *ResourceMitigation) Name() string { return "resource_mitigation" }

func (s *ResourceMitigation) FailureTypes() []model.FailureType {
	return []model.FailureType{model.FailureResource}
}

func (s *ResourceMitigation) MaxAttempts() int { return 2 }
func (s *ResourceMitigation) Priority() int { return 10 }

func (s *ResourceMitigation) Execute(ctx context.Context, rc *Context) model.RecoveryResult {
	return run(model.ActionRetry, func() model.RecoveryResult {
		state := rc.SystemState
		if !state.MemoryPressure && !state.DiskPressure && !state.CPUPressure {
			// No pressure observed; the exhaustion was transient or
			// misreported. Retry without cleanup.
			s.logger.Debug("no resource pressure in snapshot",
				zap.String("operation", rc.Operation.ID))
		} else {
			if s.monitor == nil {
				return failure(model.ActionRetry, model.ActionManualIntervention,
					errors.New("no system monitor configured"))
			}
			if err := s.monitor.FreeResources(ctx, state); err != nil {
				return failure(model.ActionRetry, "", fmt.Errorf("free resources: %w", err))
			}
			s.logger.Info("resources freed",
				zap.String("operation", rc.Operation.ID),
				zap.Bool("memory", state.MemoryPressure),
				zap.Bool("disk", state.DiskPressure),
				zap.Bool("cpu", state.CPUPressure))
		}

		if s.retrier == nil {
			return failure(model.ActionRetry, model.ActionManualIntervention,
				errors.New("no operation retrier configured"))
		}
		if err := s.retrier.Retry(ctx, rc.Operation); err != nil {
			return failure(model.ActionRetry, "", fmt.Errorf("retry operation: %w", err))
		}
		return success(model.ActionRetry)
	})
}
