// Package replay re-executes filtered, ordered subsets of the change log.
//
// # Critical Patterns
//
// Sessions move pending -> running -> completed | failed | cancelled.
// Pausing moves a running session back to pending; resuming re-enters
// running at the recorded processed count. At most one run per session is
// active at a time, enforced by an in-memory registry. Replay runs
// asynchronously; callers observe progress by polling.
package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/backup"
	"github.com/fenwick-labs/tidelog/internal/bus"
	"github.com/fenwick-labs/tidelog/internal/config"
	"github.com/fenwick-labs/tidelog/internal/model"
	"github.com/fenwick-labs/tidelog/internal/store"
)

// Executor applies one historical event to the target system. The engine
// falls back to marking processing status in the store when none is wired.
type Executor interface {
	ExecuteEvent(ctx context.Context, event model.ChangeEvent) error
}

// SelectFunc is the caller-supplied predicate for the SELECTIVE strategy.
type SelectFunc func(event model.ChangeEvent) bool

// control carries the cooperative pause/cancel flags for one active run.
// The run loop reads them between events, never mid-event.
type control struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
}

func (c *control) state() (paused, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused, c.cancelled
}

// Engine owns replay sessions end to end.
type Engine struct {
	store    *store.Store
	rollback *backup.RollbackManager
	bus      *bus.Bus
	executor Executor
	selector SelectFunc
	defaults config.ReplayConfig
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]*control
}

// Deps wires the engine's collaborators. Executor and Selector may be nil.
type Deps struct {
	Store    *store.Store
	Rollback *backup.RollbackManager
	Bus      *bus.Bus
	Executor Executor
	Selector SelectFunc
	Logger   *zap.Logger
}

// NewEngine builds a replay engine.
func NewEngine(cfg config.ReplayConfig, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	executor := deps.Executor
	if executor == nil {
		executor = &storeExecutor{store: deps.Store}
	}
	return &Engine{
		store:    deps.Store,
		rollback: deps.Rollback,
		bus:      deps.Bus,
		executor: executor,
		selector: deps.Selector,
		defaults: cfg,
		logger:   logger,
		active:   make(map[string]*control),
	}
}

// storeExecutor is the default event application: walk the event through
// its processing-status transitions.
type storeExecutor struct {
	store *store.Store
}

func (e *storeExecutor) ExecuteEvent(ctx context.Context, event model.ChangeEvent) error {
	if err := e.store.MarkProcessing(ctx, event.ID); err != nil {
		return err
	}
	return e.store.MarkProcessed(ctx, event.ID, true)
}

// CreateSession validates inputs, counts matching events, and allocates a
// PENDING session. Malformed filters and options are rejected here, before
// anything is recorded.
func (e *Engine) CreateSession(ctx context.Context, name string, filter model.EventFilter, options model.ReplayOptions, description string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("create session: name is empty")
	}
	if err := filter.Validate(); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if err := options.Validate(); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	// Unset options inherit the engine's configured defaults.
	if options.CheckpointInterval == 0 {
		options.CheckpointInterval = e.defaults.CheckpointInterval
	}
	if options.MaxConcurrency == 0 {
		options.MaxConcurrency = e.defaults.MaxConcurrency
	}
	if options.EnableRollback && options.CheckpointInterval == 0 {
		options.CheckpointInterval = model.DefaultCheckpointInterval
	}

	total, err := e.store.Count(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("create session: count events: %w", err)
	}

	now := time.Now().UTC()
	session := model.ReplaySession{
		ID:          model.NewSessionID(now),
		Name:        name,
		Description: description,
		Filter:      filter,
		Options:     options,
		Status:      model.SessionPending,
		TotalEvents: int(total),
		CreatedAt:   now,
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	e.logger.Info("replay session created",
		zap.String("session", session.ID),
		zap.String("name", name),
		zap.Int("total_events", session.TotalEvents))
	return session.ID, nil
}

// StartReplay transitions a PENDING session to RUNNING and launches the
// run asynchronously. The caller is never blocked on replay work, and a
// failure inside the run marks the session FAILED instead of propagating.
func (e *Engine) StartReplay(ctx context.Context, id string) error {
	session, err := e.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != model.SessionPending {
		return fmt.Errorf("start replay %s: session is %s, want pending", id, session.Status)
	}

	e.mu.Lock()
	if _, running := e.active[id]; running {
		e.mu.Unlock()
		return fmt.Errorf("start replay %s: run already active", id)
	}
	ctl := &control{}
	e.active[id] = ctl
	e.mu.Unlock()

	now := time.Now().UTC()
	session.Status = model.SessionRunning
	if session.StartedAt == nil {
		session.StartedAt = &now
	}
	if err := e.store.UpdateSession(ctx, session); err != nil {
		e.release(id)
		return fmt.Errorf("start replay %s: %w", id, err)
	}

	go e.run(session, ctl)
	return nil
}

// PauseReplay asks a running session to stop after the current event,
// returning it to PENDING with its progress intact.
func (e *Engine) PauseReplay(id string) error {
	ctl, err := e.controlFor(id)
	if err != nil {
		return err
	}
	ctl.mu.Lock()
	ctl.paused = true
	ctl.mu.Unlock()
	return nil
}

// CancelReplay asks a running session to stop after the current event
// and end as CANCELLED. A PENDING session is cancelled immediately.
// Already-applied events are not rolled back.
func (e *Engine) CancelReplay(ctx context.Context, id string) error {
	e.mu.Lock()
	ctl, running := e.active[id]
	e.mu.Unlock()
	if running {
		ctl.mu.Lock()
		ctl.cancelled = true
		ctl.mu.Unlock()
		return nil
	}

	session, err := e.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != model.SessionPending {
		return fmt.Errorf("cancel replay %s: session is %s", id, session.Status)
	}
	now := time.Now().UTC()
	session.Status = model.SessionCancelled
	session.CompletedAt = &now
	return e.store.UpdateSession(ctx, session)
}

// GetSession returns the session record.
func (e *Engine) GetSession(ctx context.Context, id string) (model.ReplaySession, error) {
	return e.store.GetSession(ctx, id)
}

// ListSessions returns all sessions, newest first.
func (e *Engine) ListSessions(ctx context.Context) ([]model.ReplaySession, error) {
	return e.store.ListSessions(ctx)
}

// DeleteSession removes a session and its results. Active runs must be
// cancelled first.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	e.mu.Lock()
	_, running := e.active[id]
	e.mu.Unlock()
	if running {
		return fmt.Errorf("delete session %s: run still active", id)
	}
	return e.store.DeleteSession(ctx, id)
}

func (e *Engine) controlFor(id string) (*control, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctl, ok := e.active[id]
	if !ok {
		return nil, fmt.Errorf("session %s: no active run", id)
	}
	return ctl, nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}
