package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// NetworkRetry handles transient network and timeout failures: wait out an
// exponential backoff, confirm the remote side answers, then re-issue the
// operation.
type NetworkRetry struct {
	prober     ConnectivityProber
	retrier    OperationRetrier
	base       time.Duration
	multiplier float64
	cap        time.Duration
	logger     *zap.Logger
}

// NewNetworkRetry builds the strategy with default backoff parameters.
func NewNetworkRetry(prober ConnectivityProber, retrier OperationRetrier, logger *zap.Logger) *NetworkRetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkRetry{
		prober:     prober,
		retrier:    retrier,
		base:       DefaultBackoffBase,
		multiplier: DefaultBackoffMultiplier,
		cap:        DefaultBackoffCap,
		logger:     logger,
	}
}

func (s *NetworkRetry) Name() string { return "network_retry" }

func (s *NetworkRetry) FailureTypes() []model.FailureType {
	return []model.FailureType{model.FailureNetwork, model.FailureTimeout}
}

func (s *NetworkRetry) MaxAttempts() int { return 5 }
func (s *NetworkRetry) Priority() int { return 10 }

func (s *NetworkRetry) Execute(ctx context.Context, rc *Context) model.RecoveryResult {
	return run(model.ActionBackoffRetry, func() model.RecoveryResult {
		delay := Backoff(s.base, s.multiplier, s.cap, rc.PreviousAttempts)
		s.logger.Debug("network retry backing off",
			zap.String("operation", rc.Operation.ID),
			zap.Duration("delay", delay),
			zap.Int("attempt", rc.PreviousAttempts))
		if err := sleep(ctx, delay); err != nil {
			return failure(model.ActionBackoffRetry, "", err)
		}

		if s.prober == nil {
			return failure(model.ActionBackoffRetry, model.ActionManualIntervention,
				errors.New("no connectivity prober configured"))
		}
		if err := s.prober.Probe(ctx); err != nil {
			return failure(model.ActionBackoffRetry, "", fmt.Errorf("connectivity check: %w", err))
		}

		if s.retrier == nil {
			return failure(model.ActionBackoffRetry, model.ActionManualIntervention,
				errors.New("no operation retrier configured"))
		}
		if err := s.retrier.Retry(ctx, rc.Operation); err != nil {
			return failure(model.ActionBackoffRetry, "", fmt.Errorf("retry operation: %w", err))
		}
		return success(model.ActionBackoffRetry)
	})
}
