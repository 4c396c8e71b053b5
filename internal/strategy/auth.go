package strategy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// AuthRecovery refreshes credentials and retries the operation exactly once.
// Any failure on this path escalates; stale credentials are not something a
// backoff loop fixes.
type AuthRecovery struct {
	source  CredentialSource
	retrier OperationRetrier
	logger  *zap.Logger
}

// NewAuthRecovery builds the strategy.
func NewAuthRecovery(source CredentialSource, retrier OperationRetrier, logger *zap.Logger) *AuthRecovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthRecovery{source: source, retrier: retrier, logger: logger}
}

func (s *AuthRecovery) Name() string { return "auth_recovery" }

func (s *AuthRecovery) FailureTypes() []model.FailureType {
	return []model.FailureType{model.FailureAuth, model.FailurePermission}
}

func (s *AuthRecovery) MaxAttempts() int { return 2 }
func (s *AuthRecovery) Priority() int { return 10 }

func (s *AuthRecovery) Execute(ctx context.Context, rc *Context) model.RecoveryResult {
	return run(model.ActionRetry, func() model.RecoveryResult {
		if s.source == nil {
			return failure(model.ActionRetry, model.ActionEscalate,
				errors.New("no credential source configured"))
		}
		if err := s.source.Refresh(ctx); err != nil {
			return failure(model.ActionRetry, model.ActionEscalate,
				fmt.Errorf("refresh credentials: %w", err))
		}
		s.logger.Info("credentials refreshed", zap.String("operation", rc.Operation.ID))

		if s.retrier == nil {
			return failure(model.ActionRetry, model.ActionEscalate,
				errors.New("no operation retrier configured"))
		}
		if err := s.retrier.Retry(ctx, rc.Operation); err != nil {
			return failure(model.ActionRetry, model.ActionEscalate,
				fmt.Errorf("retry after refresh: %w", err))
		}
		return success(model.ActionRetry)
	})
}
