package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newID builds a time-sortable identifier: a fixed-width hex unix-milli
// prefix followed by a random uuid fragment. Lexicographic order over IDs
// generated this way matches creation order at millisecond resolution.
func newID(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%012x-%s", prefix, t.UnixMilli(), uuid.NewString()[:8])
}

// NewEventID returns a unique, time-sortable change event ID.
func NewEventID(t time.Time) string {
	return newID("evt", t)
}

// NewSessionID returns a unique replay session ID.
func NewSessionID(t time.Time) string {
	return newID("rs", t)
}

// NewBackupID returns a unique backup ID.
func NewBackupID(t time.Time) string {
	return newID("bk", t)
}

// NewRollbackPointID returns a unique rollback point ID.
func NewRollbackPointID(t time.Time) string {
	return newID("rp", t)
}
