package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// DefaultRetry is the type-agnostic fallback: fixed backoff, one retry,
// lowest priority. The factory selects it only when no specific strategy
// still has attempt budget.
type DefaultRetry struct {
	retrier OperationRetrier
	delay   time.Duration
	logger  *zap.Logger
}

// NewDefaultRetry builds the fallback strategy.
func NewDefaultRetry(retrier OperationRetrier, logger *zap.Logger) *DefaultRetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRetry{retrier: retrier, delay: 5 * time.Second, logger: logger}
}

func (s *DefaultRetry) Name() string { return "default_retry" }

// FailureTypes is empty: the fallback claims no type and is reached only
// through the factory's fallback path.
func (s *DefaultRetry) FailureTypes() []model.FailureType { return nil }

func (s *DefaultRetry) MaxAttempts() int { return 3 }
func (s *DefaultRetry) Priority() int { return 100 }

func (s *DefaultRetry) Execute(ctx context.Context, rc *Context) model.RecoveryResult {
	return run(model.ActionRetry, func() model.RecoveryResult {
		if err := sleep(ctx, s.delay); err != nil {
			return failure(model.ActionRetry, "", err)
		}
		if s.retrier == nil {
			return failure(model.ActionRetry, model.ActionManualIntervention,
				errors.New("no operation retrier configured"))
		}
		if err := s.retrier.Retry(ctx, rc.Operation); err != nil {
			return failure(model.ActionRetry, "", fmt.Errorf("retry operation: %w", err))
		}
		s.logger.Debug("fallback retry succeeded", zap.String("operation", rc.Operation.ID))
		return success(model.ActionRetry)
	})
}
