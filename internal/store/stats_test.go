package store

import (
	"context"
	"testing"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

func TestStatistics_Counts(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	stats, err := s.Statistics(context.Background(), model.EventFilter{})
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}

	if stats.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", stats.TotalEvents)
	}
	if stats.ByType[model.EventDBChange] != 2 {
		t.Errorf("ByType[db_change] = %d, want 2", stats.ByType[model.EventDBChange])
	}
	if stats.BySeverity["critical"] != 1 {
		t.Errorf("BySeverity[critical] = %d, want 1", stats.BySeverity["critical"])
	}
}

func TestStatistics_Timeline(t *testing.T) {
	s := createTestStore(t)

	// Two events in one hour bucket, one in the next.
	mustAppend(t, s, makeEvent("evt-1", model.EventSystem, model.SeverityInfo, 0))
	mustAppend(t, s, makeEvent("evt-2", model.EventSystem, model.SeverityInfo, 10*time.Minute))
	mustAppend(t, s, makeEvent("evt-3", model.EventSystem, model.SeverityInfo, 90*time.Minute))

	stats, err := s.Statistics(context.Background(), model.EventFilter{})
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}

	if len(stats.Timeline) != 2 {
		t.Fatalf("len(Timeline) = %d, want 2", len(stats.Timeline))
	}
	if stats.Timeline[0].Count != 2 || stats.Timeline[1].Count != 1 {
		t.Errorf("Timeline counts = [%d %d], want [2 1]",
			stats.Timeline[0].Count, stats.Timeline[1].Count)
	}
	if !stats.Timeline[0].Start.Before(stats.Timeline[1].Start) {
		t.Error("Timeline buckets not ordered oldest first")
	}
}

func TestStatistics_RespectsFilter(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	stats, err := s.Statistics(context.Background(), model.EventFilter{
		Types: []model.EventType{model.EventFileChange},
	})
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}
	if stats.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want 1", stats.TotalEvents)
	}
}
