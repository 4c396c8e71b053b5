package strategy

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Deps are the collaborators the built-in strategies draw on. Any field may
// be nil; the affected strategies then fail honestly at execution time.
type Deps struct {
	Prober      ConnectivityProber
	Credentials CredentialSource
	Retrier     OperationRetrier
	Resolver    ConflictResolver
	Restorer    BackupRestorer
	Validator   StateValidator
	Monitor     SystemMonitor
	Logger      *zap.Logger
}

// Factory indexes strategies by the failure types they claim and selects
// one per classification. Custom strategies may be registered at runtime.
type Factory struct {
	mu       sync.RWMutex
	byType   map[model.FailureType][]Strategy
	fallback Strategy
}

// NewFactory builds a factory pre-loaded with the built-in strategy set.
func NewFactory(deps Deps) *Factory {
	f := &Factory{
		byType:   make(map[model.FailureType][]Strategy),
		fallback: NewDefaultRetry(deps.Retrier, deps.Logger),
	}
	f.Register(NewNetworkRetry(deps.Prober, deps.Retrier, deps.Logger))
	f.Register(NewAuthRecovery(deps.Credentials, deps.Retrier, deps.Logger))
	f.Register(NewCorruptionRecovery(deps.Restorer, deps.Validator, deps.Logger))
	f.Register(NewConflictResolution(deps.Resolver, deps.Logger))
	f.Register(NewResourceMitigation(deps.Monitor, deps.Retrier, deps.Logger))
	return f
}

// Register indexes s under every failure type it declares, keeping each
// type's list ordered by priority (lower first).
func (f *Factory) Register(s Strategy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range s.FailureTypes() {
		list := append(f.byType[t], s)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() < list[j].Priority()
		})
		f.byType[t] = list
	}
}

// Select returns the first registered strategy for failureType whose
// attempt budget exceeds previousAttempts, or the fallback when none
// qualifies.
func (f *Factory) Select(failureType model.FailureType, previousAttempts int) Strategy {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.byType[failureType] {
		if s.MaxAttempts() > previousAttempts {
			return s
		}
	}
	return f.fallback
}
