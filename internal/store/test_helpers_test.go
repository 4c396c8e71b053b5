package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// createTestStore creates a temp-file store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// makeEvent builds a minimal valid event with a fixed timestamp offset.
func makeEvent(id string, eventType model.EventType, severity model.Severity, offset time.Duration) model.ChangeEvent {
	return model.ChangeEvent{
		ID:        id,
		Type:      eventType,
		Severity:  severity,
		Source:    "test",
		Timestamp: testEpoch.Add(offset),
	}
}

// mustAppend appends an event or fails the test.
func mustAppend(t *testing.T, s *Store, event model.ChangeEvent) model.ChangeEvent {
	t.Helper()
	if _, err := s.Append(context.Background(), &event); err != nil {
		t.Fatalf("Append(%s) failed: %v", event.ID, err)
	}
	return event
}

// testEpoch is a fixed reference instant so orderings are reproducible.
var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
