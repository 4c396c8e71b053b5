package replay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fenwick-labs/tidelog/internal/backup"
	"github.com/fenwick-labs/tidelog/internal/config"
	"github.com/fenwick-labs/tidelog/internal/model"
	"github.com/fenwick-labs/tidelog/internal/store"
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// scriptedExecutor fails for the event IDs it is told to and counts every
// execution per event.
type scriptedExecutor struct {
	mu    sync.Mutex
	fail  map[string]bool
	block chan struct{}
	runs  map[string]int
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{fail: make(map[string]bool), runs: make(map[string]int)}
}

func (x *scriptedExecutor) ExecuteEvent(ctx context.Context, event model.ChangeEvent) error {
	if x.block != nil {
		<-x.block
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.runs[event.ID]++
	if x.fail[event.ID] {
		return errors.New("replay target rejected event")
	}
	return nil
}

func (x *scriptedExecutor) runCount(id string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.runs[id]
}

func createTestEngine(t *testing.T, executor Executor) (*Engine, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	backups := backup.NewLocalManager(s, filepath.Join(dir, "backups"), dbPath, nil)
	rollback := backup.NewRollbackManager(s, backups, nil)

	engine := NewEngine(config.DefaultConfig().Replay, Deps{
		Store:    s,
		Rollback: rollback,
		Executor: executor,
	})
	return engine, s
}

// seedEvents appends n events one minute apart and returns their IDs.
func seedEvents(t *testing.T, s *store.Store, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ts := testEpoch.Add(time.Duration(i) * time.Minute)
		event := &model.ChangeEvent{
			ID:        fmt.Sprintf("evt-%03d", i),
			Type:      model.EventFileChange,
			Severity:  model.SeverityInfo,
			Source:    "test",
			Timestamp: ts,
			ProjectID: "proj-1",
			Data:      map[string]any{"n": i},
		}
		if _, err := s.Append(context.Background(), event); err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
		ids[i] = event.ID
	}
	return ids
}

func defaultOptions() model.ReplayOptions {
	return model.ReplayOptions{
		Mode:     model.ModeSafe,
		Strategy: model.StrategySequential,
	}
}

func waitForTerminal(t *testing.T, engine *Engine, id string) model.ReplaySession {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		session, err := engine.GetSession(context.Background(), id)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if session.Status.Terminal() {
			return session
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal status")
	return model.ReplaySession{}
}

func TestCreateSession_RejectsBadInputSynchronously(t *testing.T) {
	engine, _ := createTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.CreateSession(ctx, "", model.EventFilter{}, defaultOptions(), ""); err == nil {
		t.Fatal("empty name accepted")
	}
	bad := defaultOptions()
	bad.Mode = "yolo"
	if _, err := engine.CreateSession(ctx, "s", model.EventFilter{}, bad, ""); err == nil {
		t.Fatal("unknown mode accepted")
	}
	if _, err := engine.CreateSession(ctx, "s", model.EventFilter{Offset: -1}, defaultOptions(), ""); err == nil {
		t.Fatal("negative offset accepted")
	}
}

func TestReplay_CompletesAndSummarizes(t *testing.T) {
	executor := newScriptedExecutor()
	engine, s := createTestEngine(t, executor)
	ctx := context.Background()
	seedEvents(t, s, 5)

	options := defaultOptions()
	options.EnableValidation = true
	id, err := engine.CreateSession(ctx, "full", model.EventFilter{}, options, "replay everything")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("StartReplay: %v", err)
	}

	session := waitForTerminal(t, engine, id)
	if session.Status != model.SessionCompleted {
		t.Fatalf("status = %s, want completed", session.Status)
	}
	if session.ProcessedEvents != 5 || session.SucceededEvents != 5 {
		t.Fatalf("counters = %+v", session)
	}
	if session.Summary == nil {
		t.Fatal("no summary attached")
	}
	if session.Summary.Validation == nil || !session.Summary.Validation.Consistent {
		t.Fatalf("validation = %+v", session.Summary.Validation)
	}
	if session.Summary.Validation.Checked != 5 {
		t.Fatalf("checked = %d, want 5", session.Summary.Validation.Checked)
	}
}

func TestReplay_StopOnErrorFailsAtThirdEvent(t *testing.T) {
	executor := newScriptedExecutor()
	executor.fail["evt-002"] = true
	engine, s := createTestEngine(t, executor)
	ctx := context.Background()
	seedEvents(t, s, 5)

	options := defaultOptions()
	options.StopOnError = true
	id, err := engine.CreateSession(ctx, "abort", model.EventFilter{}, options, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("StartReplay: %v", err)
	}

	session := waitForTerminal(t, engine, id)
	if session.Status != model.SessionFailed {
		t.Fatalf("status = %s, want failed", session.Status)
	}
	if session.ProcessedEvents != 3 {
		t.Fatalf("processed = %d, want 3", session.ProcessedEvents)
	}

	results, err := s.ListEventResults(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	var succeeded, failed int
	for _, result := range results {
		switch result.Status {
		case model.ReplaySuccess:
			succeeded++
		case model.ReplayFailed:
			failed++
		}
	}
	if succeeded != 2 || failed != 1 {
		t.Fatalf("results = %d success, %d failed, want 2/1", succeeded, failed)
	}
}

func TestReplay_SequentialOrderIsDeterministic(t *testing.T) {
	engine, s := createTestEngine(t, newScriptedExecutor())
	ctx := context.Background()
	seedEvents(t, s, 8)

	orders := make([][]string, 2)
	for attempt := range orders {
		id, err := engine.CreateSession(ctx, fmt.Sprintf("run-%d", attempt),
			model.EventFilter{}, defaultOptions(), "")
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := engine.StartReplay(ctx, id); err != nil {
			t.Fatalf("StartReplay: %v", err)
		}
		waitForTerminal(t, engine, id)

		results, err := s.ListEventResults(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		for i, result := range results {
			if result.Order != i {
				t.Fatalf("attempt %d: result %d has order %d", attempt, i, result.Order)
			}
			orders[attempt] = append(orders[attempt], result.EventID)
		}
	}

	if len(orders[0]) != len(orders[1]) {
		t.Fatalf("order lengths differ: %d vs %d", len(orders[0]), len(orders[1]))
	}
	for i := range orders[0] {
		if orders[0][i] != orders[1][i] {
			t.Fatalf("order diverges at %d: %s vs %s", i, orders[0][i], orders[1][i])
		}
	}
}

func TestValidateReplay_NoEventsIsWarningOnly(t *testing.T) {
	engine, _ := createTestEngine(t, nil)
	ctx := context.Background()

	id, err := engine.CreateSession(ctx, "empty", model.EventFilter{
		Sources: []string{"nobody"},
	}, defaultOptions(), "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	report, err := engine.ValidateReplay(ctx, id)
	if err != nil {
		t.Fatalf("ValidateReplay: %v", err)
	}
	if !report.Valid {
		t.Fatal("warnings blocked execution")
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Code == IssueNoEvents && issue.Level == model.IssueWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("no NO_EVENTS warning in %+v", report.Issues)
	}
}

func TestValidateReplay_HighConcurrencyWarns(t *testing.T) {
	engine, s := createTestEngine(t, nil)
	ctx := context.Background()
	seedEvents(t, s, 1)

	options := defaultOptions()
	options.MaxConcurrency = 64
	id, err := engine.CreateSession(ctx, "wide", model.EventFilter{}, options, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	report, err := engine.ValidateReplay(ctx, id)
	if err != nil {
		t.Fatalf("ValidateReplay: %v", err)
	}
	if !report.Valid {
		t.Fatal("warning treated as error")
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Code == IssueHighConcurrency {
			found = true
		}
	}
	if !found {
		t.Fatalf("no HIGH_CONCURRENCY warning in %+v", report.Issues)
	}
}

func TestReplay_PauseAndResume(t *testing.T) {
	executor := newScriptedExecutor()
	engine, s := createTestEngine(t, executor)
	ctx := context.Background()
	ids := seedEvents(t, s, 6)

	id, err := engine.CreateSession(ctx, "pausable", model.EventFilter{}, defaultOptions(), "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("StartReplay: %v", err)
	}
	if err := engine.PauseReplay(id); err != nil {
		t.Fatalf("PauseReplay: %v", err)
	}

	// Wait for the run to park back in PENDING.
	deadline := time.Now().Add(10 * time.Second)
	var paused model.ReplaySession
	for {
		paused, err = engine.GetSession(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if paused.Status == model.SessionPending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never paused, status %s", paused.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	session := waitForTerminal(t, engine, id)
	if session.Status != model.SessionCompleted {
		t.Fatalf("status = %s, want completed", session.Status)
	}
	if session.ProcessedEvents != 6 {
		t.Fatalf("processed = %d, want 6", session.ProcessedEvents)
	}
	// Resume never re-applies what the first run already processed.
	for _, eventID := range ids {
		if n := executor.runCount(eventID); n != 1 {
			t.Fatalf("event %s executed %d times, want 1", eventID, n)
		}
	}
}

func TestReplay_CancelEndsSession(t *testing.T) {
	executor := newScriptedExecutor()
	executor.block = make(chan struct{})
	engine, s := createTestEngine(t, executor)
	ctx := context.Background()
	seedEvents(t, s, 4)

	id, err := engine.CreateSession(ctx, "cancellable", model.EventFilter{}, defaultOptions(), "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("StartReplay: %v", err)
	}
	if err := engine.CancelReplay(ctx, id); err != nil {
		t.Fatalf("CancelReplay: %v", err)
	}
	close(executor.block)

	session := waitForTerminal(t, engine, id)
	if session.Status != model.SessionCancelled {
		t.Fatalf("status = %s, want cancelled", session.Status)
	}
}

func TestReplay_CheckpointsCreateRollbackPoints(t *testing.T) {
	executor := newScriptedExecutor()
	engine, s := createTestEngine(t, executor)
	ctx := context.Background()
	seedEvents(t, s, 4)

	options := defaultOptions()
	options.EnableRollback = true
	options.CheckpointInterval = 2
	id, err := engine.CreateSession(ctx, "checkpointed", model.EventFilter{}, options, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("StartReplay: %v", err)
	}
	waitForTerminal(t, engine, id)

	points, err := s.ListRollbackPoints(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("rollback points = %d, want 2 (after events 2 and 4)", len(points))
	}
}

func TestStartReplay_RequiresPending(t *testing.T) {
	engine, s := createTestEngine(t, newScriptedExecutor())
	ctx := context.Background()
	seedEvents(t, s, 2)

	id, err := engine.CreateSession(ctx, "once", model.EventFilter{}, defaultOptions(), "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("StartReplay: %v", err)
	}
	session := waitForTerminal(t, engine, id)
	if session.Status != model.SessionCompleted {
		t.Fatalf("status = %s", session.Status)
	}
	if err := engine.StartReplay(ctx, id); err == nil {
		t.Fatal("completed session restarted")
	}
}

func TestCreateSession_AppliesConfiguredDefaults(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	backups := backup.NewLocalManager(s, filepath.Join(dir, "backups"), dbPath, nil)
	rollback := backup.NewRollbackManager(s, backups, nil)
	engine := NewEngine(config.ReplayConfig{CheckpointInterval: 2, MaxConcurrency: 8}, Deps{
		Store:    s,
		Rollback: rollback,
		Executor: newScriptedExecutor(),
	})
	ctx := context.Background()
	seedEvents(t, s, 4)

	options := defaultOptions()
	options.EnableRollback = true
	id, err := engine.CreateSession(ctx, "configured", model.EventFilter{}, options, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	session, err := engine.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if session.Options.CheckpointInterval != 2 {
		t.Fatalf("checkpoint interval = %d, want the configured 2", session.Options.CheckpointInterval)
	}
	if session.Options.MaxConcurrency != 8 {
		t.Fatalf("max concurrency = %d, want the configured 8", session.Options.MaxConcurrency)
	}

	// Explicit options win over the configured defaults.
	options.CheckpointInterval = 3
	options.MaxConcurrency = 1
	id, err = engine.CreateSession(ctx, "explicit", model.EventFilter{}, options, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	session, err = engine.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if session.Options.CheckpointInterval != 3 || session.Options.MaxConcurrency != 1 {
		t.Fatalf("options = %+v, explicit values were overridden", session.Options)
	}
}

func TestReplay_ConfiguredCheckpointIntervalTakesEffect(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	backups := backup.NewLocalManager(s, filepath.Join(dir, "backups"), dbPath, nil)
	rollback := backup.NewRollbackManager(s, backups, nil)
	engine := NewEngine(config.ReplayConfig{CheckpointInterval: 2, MaxConcurrency: 4}, Deps{
		Store:    s,
		Rollback: rollback,
		Executor: newScriptedExecutor(),
	})
	ctx := context.Background()
	seedEvents(t, s, 4)

	options := defaultOptions()
	options.EnableRollback = true
	id, err := engine.CreateSession(ctx, "configured-checkpoints", model.EventFilter{}, options, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("StartReplay: %v", err)
	}
	waitForTerminal(t, engine, id)

	points, err := s.ListRollbackPoints(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("rollback points = %d, want 2 from the configured interval", len(points))
	}
}

func TestReplay_SkipListedEventsAreRecordedAsSkipped(t *testing.T) {
	executor := newScriptedExecutor()
	engine, s := createTestEngine(t, executor)
	ctx := context.Background()
	ids := seedEvents(t, s, 3)

	options := defaultOptions()
	options.SkipEvents = []string{ids[1]}
	options.EnableValidation = true
	id, err := engine.CreateSession(ctx, "with-skip", model.EventFilter{}, options, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := engine.StartReplay(ctx, id); err != nil {
		t.Fatalf("StartReplay: %v", err)
	}

	session := waitForTerminal(t, engine, id)
	if session.Status != model.SessionCompleted {
		t.Fatalf("status = %s, want completed", session.Status)
	}
	if session.ProcessedEvents != 3 || session.SucceededEvents != 2 || session.SkippedEvents != 1 {
		t.Fatalf("counters = %d processed / %d succeeded / %d skipped, want 3/2/1",
			session.ProcessedEvents, session.SucceededEvents, session.SkippedEvents)
	}
	if executor.runCount(ids[1]) != 0 {
		t.Fatalf("skip-listed event executed %d times", executor.runCount(ids[1]))
	}

	results, err := s.ListEventResults(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	var skipped *model.ReplayEventResult
	for i := range results {
		if results[i].EventID == ids[1] {
			skipped = &results[i]
		}
	}
	if skipped == nil {
		t.Fatal("skip-listed event left no result")
	}
	if skipped.Status != model.ReplaySkipped || skipped.Order != 1 {
		t.Fatalf("result = %+v, want SKIPPED at order 1", skipped)
	}

	if session.Summary == nil || session.Summary.Validation == nil || !session.Summary.Validation.Consistent {
		t.Fatalf("summary = %+v, skipped counter should reconcile", session.Summary)
	}
}
