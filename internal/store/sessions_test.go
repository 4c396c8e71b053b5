package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

func makeSession(id string) model.ReplaySession {
	return model.ReplaySession{
		ID:     id,
		Name:   "nightly audit",
		Filter: model.EventFilter{Types: []model.EventType{model.EventDBChange}},
		Options: model.ReplayOptions{
			Mode:     model.ModeSafe,
			Strategy: model.StrategySequential,
		},
		Status:      model.SessionPending,
		TotalEvents: 3,
		CreatedAt:   testEpoch,
	}
}

func TestSession_CreateAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, makeSession("rs-1")); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}

	got, err := s.GetSession(ctx, "rs-1")
	if err != nil {
		t.Fatalf("GetSession() failed: %v", err)
	}
	if got.Name != "nightly audit" {
		t.Errorf("Name = %q, want %q", got.Name, "nightly audit")
	}
	if got.Status != model.SessionPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if len(got.Filter.Types) != 1 || got.Filter.Types[0] != model.EventDBChange {
		t.Errorf("Filter.Types = %v, want [db_change]", got.Filter.Types)
	}
	if got.Options.Mode != model.ModeSafe {
		t.Errorf("Options.Mode = %q, want safe", got.Options.Mode)
	}
	if got.StartedAt != nil || got.CompletedAt != nil || got.Summary != nil {
		t.Error("fresh session has non-nil started/completed/summary")
	}
}

func TestSession_Update(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := makeSession("rs-1")
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}

	started := testEpoch.Add(time.Minute)
	completed := testEpoch.Add(2 * time.Minute)
	session.Status = model.SessionCompleted
	session.ProcessedEvents = 3
	session.SucceededEvents = 3
	session.StartedAt = &started
	session.CompletedAt = &completed
	session.Summary = &model.ReplaySummary{Duration: time.Minute, EventsPerSecond: 0.05}

	if err := s.UpdateSession(ctx, session); err != nil {
		t.Fatalf("UpdateSession() failed: %v", err)
	}

	got, err := s.GetSession(ctx, "rs-1")
	if err != nil {
		t.Fatalf("GetSession() failed: %v", err)
	}
	if got.Status != model.SessionCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.ProcessedEvents != 3 {
		t.Errorf("ProcessedEvents = %d, want 3", got.ProcessedEvents)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Summary == nil || got.Summary.Duration != time.Minute {
		t.Errorf("Summary = %+v, want duration 1m", got.Summary)
	}
}

func TestSession_UpdateMissing(t *testing.T) {
	s := createTestStore(t)

	err := s.UpdateSession(context.Background(), makeSession("rs-ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSession() error = %v, want ErrNotFound", err)
	}
}

func TestSession_ListNewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	older := makeSession("rs-old")
	older.CreatedAt = testEpoch
	newer := makeSession("rs-new")
	newer.CreatedAt = testEpoch.Add(time.Hour)

	if err := s.CreateSession(ctx, older); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	if err := s.CreateSession(ctx, newer); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "rs-new" {
		t.Errorf("sessions[0].ID = %q, want rs-new", sessions[0].ID)
	}
}

func TestSession_DeleteCascadesResults(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, makeSession("rs-1")); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	if err := s.AppendEventResult(ctx, model.ReplayEventResult{
		SessionID: "rs-1", EventID: "evt-1", Status: model.ReplaySuccess, Order: 0,
	}); err != nil {
		t.Fatalf("AppendEventResult() failed: %v", err)
	}

	if err := s.DeleteSession(ctx, "rs-1"); err != nil {
		t.Fatalf("DeleteSession() failed: %v", err)
	}

	results, err := s.ListEventResults(ctx, "rs-1")
	if err != nil {
		t.Fatalf("ListEventResults() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d after cascade delete, want 0", len(results))
	}
}

func TestEventResults_OrderedAndIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, makeSession("rs-1")); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}

	for _, r := range []model.ReplayEventResult{
		{SessionID: "rs-1", EventID: "evt-b", Status: model.ReplaySuccess, Duration: time.Millisecond, Order: 1},
		{SessionID: "rs-1", EventID: "evt-a", Status: model.ReplayFailed, Error: "boom", Order: 0},
		{SessionID: "rs-1", EventID: "evt-a", Status: model.ReplaySuccess, Order: 0}, // duplicate order, ignored
	} {
		if err := s.AppendEventResult(ctx, r); err != nil {
			t.Fatalf("AppendEventResult() failed: %v", err)
		}
	}

	results, err := s.ListEventResults(ctx, "rs-1")
	if err != nil {
		t.Fatalf("ListEventResults() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].EventID != "evt-a" || results[0].Status != model.ReplayFailed {
		t.Errorf("results[0] = %+v, want original failed evt-a", results[0])
	}
	if results[1].EventID != "evt-b" {
		t.Errorf("results[1].EventID = %q, want evt-b", results[1].EventID)
	}
}
