package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

func seedEvents(t *testing.T, s *Store) {
	t.Helper()
	mustAppend(t, s, makeEvent("evt-1", model.EventFileChange, model.SeverityInfo, 0))
	mustAppend(t, s, makeEvent("evt-2", model.EventDBChange, model.SeverityWarning, time.Minute))
	mustAppend(t, s, makeEvent("evt-3", model.EventSyncOperation, model.SeverityError, 2*time.Minute))
	mustAppend(t, s, makeEvent("evt-4", model.EventDBChange, model.SeverityCritical, 3*time.Minute))
}

func TestQuery_All(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	events, err := s.Query(context.Background(), model.EventFilter{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(events))
	}
	// Default ordering is timestamp ascending.
	for i, want := range []string{"evt-1", "evt-2", "evt-3", "evt-4"} {
		if events[i].ID != want {
			t.Errorf("events[%d].ID = %q, want %q", i, events[i].ID, want)
		}
	}
}

func TestQuery_Descending(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	events, err := s.Query(context.Background(), model.EventFilter{Sort: model.SortDescending})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if events[0].ID != "evt-4" {
		t.Errorf("events[0].ID = %q, want evt-4", events[0].ID)
	}
}

func TestQuery_ByType(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	events, err := s.Query(context.Background(), model.EventFilter{
		Types: []model.EventType{model.EventDBChange},
	})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	for _, event := range events {
		if event.Type != model.EventDBChange {
			t.Errorf("event %s type = %q, want db_change", event.ID, event.Type)
		}
	}
}

func TestQuery_MinSeverity(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	min := model.SeverityError
	events, err := s.Query(context.Background(), model.EventFilter{MinSeverity: &min})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(events))
	}
}

func TestQuery_TimeRange(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	since := testEpoch.Add(30 * time.Second)
	until := testEpoch.Add(150 * time.Second)
	events, err := s.Query(context.Background(), model.EventFilter{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].ID != "evt-2" || events[1].ID != "evt-3" {
		t.Errorf("events = [%s %s], want [evt-2 evt-3]", events[0].ID, events[1].ID)
	}
}

func TestQuery_Pagination(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	page, err := s.Query(context.Background(), model.EventFilter{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
	if page[0].ID != "evt-2" || page[1].ID != "evt-3" {
		t.Errorf("page = [%s %s], want [evt-2 evt-3]", page[0].ID, page[1].ID)
	}
}

func TestQuery_DeterministicTieBreak(t *testing.T) {
	s := createTestStore(t)

	// Three events sharing one timestamp; seq (insertion order) breaks ties.
	for _, id := range []string{"evt-b", "evt-a", "evt-c"} {
		mustAppend(t, s, makeEvent(id, model.EventSystem, model.SeverityInfo, 0))
	}

	first, err := s.Query(context.Background(), model.EventFilter{})
	if err != nil {
		t.Fatalf("first Query() failed: %v", err)
	}
	second, err := s.Query(context.Background(), model.EventFilter{})
	if err != nil {
		t.Fatalf("second Query() failed: %v", err)
	}

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("lengths = %d, %d, want 3, 3", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("ordering not deterministic at %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
	// Insertion order wins for equal timestamps.
	if first[0].ID != "evt-b" || first[1].ID != "evt-a" || first[2].ID != "evt-c" {
		t.Errorf("tie-break order = [%s %s %s], want insertion order [evt-b evt-a evt-c]",
			first[0].ID, first[1].ID, first[2].ID)
	}
}

func TestQuery_RejectsBadFilter(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Query(context.Background(), model.EventFilter{Offset: -1})
	if err == nil {
		t.Error("Query() with negative offset succeeded, want error")
	}
}

func TestCount_IgnoresPagination(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	count, err := s.Count(context.Background(), model.EventFilter{Limit: 1})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 4 {
		t.Errorf("Count() = %d, want 4", count)
	}
}

func TestSearch_PayloadSubstring(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	event := makeEvent("evt-1", model.EventFileChange, model.SeverityInfo, 0)
	event.Data = map[string]any{"path": "/workspace/tasks/042.md"}
	mustAppend(t, s, event)
	mustAppend(t, s, makeEvent("evt-2", model.EventFileChange, model.SeverityInfo, time.Second))

	hits, err := s.Search(ctx, "tasks/042", model.EventFilter{})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "evt-1" {
		t.Errorf("Search() hits = %v, want [evt-1]", hits)
	}
}

func TestSearch_MetadataMatch(t *testing.T) {
	s := createTestStore(t)

	event := makeEvent("evt-1", model.EventSystem, model.SeverityInfo, 0)
	event.Metadata = map[string]string{"operator": "night-shift"}
	mustAppend(t, s, event)

	hits, err := s.Search(context.Background(), "night-shift", model.EventFilter{})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("len(hits) = %d, want 1", len(hits))
	}
}

func TestSearch_EscapesWildcards(t *testing.T) {
	s := createTestStore(t)

	event := makeEvent("evt-1", model.EventSystem, model.SeverityInfo, 0)
	event.Data = map[string]any{"note": "100% done"}
	mustAppend(t, s, event)
	mustAppend(t, s, makeEvent("evt-2", model.EventSystem, model.SeverityInfo, time.Second))

	// A literal % must not act as a wildcard.
	hits, err := s.Search(context.Background(), "100% done", model.EventFilter{})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "evt-1" {
		t.Errorf("Search() hits = %d, want exactly evt-1", len(hits))
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetEvent(context.Background(), "evt-ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEvent() error = %v, want ErrNotFound", err)
	}
}
