package backup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fenwick-labs/tidelog/internal/store"
	"github.com/fenwick-labs/tidelog/internal/testutil"
)

func createRollbackManager(t *testing.T) (*RollbackManager, *LocalManager) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	backups := NewLocalManager(&fileSource{content: []byte("state")},
		filepath.Join(dir, "backups"), filepath.Join(dir, "live.db"), nil)
	return NewRollbackManager(s, backups, nil), backups
}

func TestRollbackManager_CreateAndRestore(t *testing.T) {
	m, _ := createRollbackManager(t)
	ctx := context.Background()

	point, err := m.CreatePoint(ctx, "pre-recovery", []string{"op-1"})
	if err != nil {
		t.Fatalf("CreatePoint: %v", err)
	}
	if point.BackupID == "" {
		t.Fatal("point has no backing backup")
	}
	if !point.ExpiresAt.After(point.CreatedAt) {
		t.Fatal("point expires before creation")
	}

	if err := m.Restore(ctx, point.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	// Restore consumes the point.
	if err := m.Restore(ctx, point.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second restore = %v, want ErrNotFound", err)
	}
}

func TestRollbackManager_ExpiredPointNeverRestored(t *testing.T) {
	m, backups := createRollbackManager(t)
	ctx := context.Background()

	point, err := m.CreatePoint(ctx, "pre-recovery", nil)
	if err != nil {
		t.Fatalf("CreatePoint: %v", err)
	}

	clock := testutil.NewClock(point.ExpiresAt.Add(time.Second))
	m.now = clock.Now
	if err := m.Restore(ctx, point.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("restore of expired point = %v, want ErrExpired", err)
	}

	// The backing backup is untouched and the point still exists: expiry
	// enforcement mutates nothing.
	if err := backups.VerifyBackup(ctx, point.BackupID); err != nil {
		t.Fatalf("backup touched by refused restore: %v", err)
	}
	points, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 {
		t.Fatalf("points = %d after refused restore, want 1", len(points))
	}
}

func TestRollbackManager_DiscardConsumesPointAndBackup(t *testing.T) {
	m, backups := createRollbackManager(t)
	ctx := context.Background()

	point, err := m.CreatePoint(ctx, "pre-recovery", nil)
	if err != nil {
		t.Fatalf("CreatePoint: %v", err)
	}
	if err := m.Discard(ctx, point.ID); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if err := backups.VerifyBackup(ctx, point.BackupID); !errors.Is(err, ErrBackupNotFound) {
		t.Fatalf("backup survived discard: %v", err)
	}
	points, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 0 {
		t.Fatalf("points = %d after discard, want 0", len(points))
	}
}

func TestRollbackManager_PurgeExpired(t *testing.T) {
	m, _ := createRollbackManager(t)
	ctx := context.Background()

	point, err := m.CreatePoint(ctx, "pre-recovery", nil)
	if err != nil {
		t.Fatalf("CreatePoint: %v", err)
	}

	clock := testutil.NewClock(point.ExpiresAt.Add(time.Minute))
	m.now = clock.Now
	purged, err := m.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
}
