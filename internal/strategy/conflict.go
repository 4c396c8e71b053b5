package strategy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// ConflictResolution settles sync conflicts by policy: simple update
// conflicts take last-write-wins, low-severity conflicts are auto-merged,
// and everything else goes to a human.
type ConflictResolution struct {
	resolver ConflictResolver
	logger   *zap.Logger
}

// NewConflictResolution builds the strategy.
func NewConflictResolution(resolver ConflictResolver, logger *zap.Logger) *ConflictResolution {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictResolution{resolver: resolver, logger: logger}
}

func (s *ConflictResolution) Name() string { return "conflict_resolution" }

func (s *ConflictResolution) FailureTypes() []model.FailureType {
	return []model.FailureType{model.FailureConflict}
}

func (s *ConflictResolution) MaxAttempts() int { return 3 }
func (s *ConflictResolution) Priority() int { return 10 }

// selectPolicy picks the resolution policy from the conflict's shape.
func selectPolicy(rc *Context) ResolutionPolicy {
	switch {
	case rc.Operation.Type == "update":
		return PolicyLastWriteWins
	case rc.Classification.Severity == model.FailureLow:
		return PolicyAutoMerge
	default:
		return PolicyManualReview
	}
}

func (s *ConflictResolution) Execute(ctx context.Context, rc *Context) model.RecoveryResult {
	return run(model.ActionFallbackStrategy, func() model.RecoveryResult {
		policy := selectPolicy(rc)
		if policy == PolicyManualReview {
			return failure(model.ActionFallbackStrategy, model.ActionManualIntervention,
				fmt.Errorf("conflict on %s requires manual review", rc.Operation.ID))
		}

		if s.resolver == nil {
			return failure(model.ActionFallbackStrategy, model.ActionManualIntervention,
				errors.New("no conflict resolver configured"))
		}
		resolved, err := s.resolver.Resolve(ctx, rc.Operation, policy)
		if err != nil {
			return failure(model.ActionFallbackStrategy, "", fmt.Errorf("resolve conflict: %w", err))
		}
		s.logger.Info("conflict resolved",
			zap.String("operation", rc.Operation.ID),
			zap.String("policy", string(policy)),
			zap.Int("records", resolved))
		return success(model.ActionFallbackStrategy)
	})
}
